package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChatID = "3f1c2a9e-6b1d-4c39-9a57-0d5e8b3f2a10"
	testMsgID  = "8a4e7c21-2f3b-4d6a-b1c9-5e0f7a2d9c34"
)

var messageRowColumns = []string{"id", "chat_id", "sender_id", "body", "client_id", "created_at", "edited_at", "deleted"}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(conn, "postgres")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestCreateMessageStoresAndTouchesChat(t *testing.T) {
	db, mock := newMockDB(t)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")+".*ON CONFLICT \\(chat_id, client_id\\) DO NOTHING RETURNING").
		WithArgs(sqlmock.AnyArg(), testChatID, "alice", "hi", "c-1").
		WillReturnRows(sqlmock.NewRows(messageRowColumns).
			AddRow(testMsgID, testChatID, "alice", "hi", "c-1", createdAt, nil, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chats SET updated_at=$2 WHERE id=$1")).
		WithArgs(testChatID, createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := NewMessageRepo(db).CreateMessage(context.Background(), testChatID, "alice", "hi", "c-1")
	require.NoError(t, err)
	assert.Equal(t, testMsgID, msg.ID)
	require.NotNil(t, msg.ClientID)
	assert.Equal(t, "c-1", *msg.ClientID)
	assert.Equal(t, createdAt, msg.CreatedAt)
}

func TestCreateMessageConflictIsDuplicate(t *testing.T) {
	db, mock := newMockDB(t)

	// ON CONFLICT DO NOTHING returns no row when the client id is taken.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs(sqlmock.AnyArg(), testChatID, "alice", "hi", "c-1").
		WillReturnRows(sqlmock.NewRows(messageRowColumns))
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).CreateMessage(context.Background(), testChatID, "alice", "hi", "c-1")
	assert.ErrorIs(t, err, ErrDuplicateClientID)
}

func TestCreateMessageUniqueViolationIsDuplicate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).CreateMessage(context.Background(), testChatID, "alice", "hi", "c-1")
	assert.ErrorIs(t, err, ErrDuplicateClientID)
}

func TestCreateMessageInsertFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).CreateMessage(context.Background(), testChatID, "alice", "hi", "c-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, ErrDuplicateClientID)
}

func TestFindByChatAndClientIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE chat_id=$1 AND client_id=$2")).
		WithArgs(testChatID, "c-404").
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	_, err := NewMessageRepo(db).FindByChatAndClientID(context.Background(), testChatID, "c-404")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestAdvanceReadCursorOnlyMovesForward(t *testing.T) {
	db, mock := newMockDB(t)
	readAt := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	// The guard compares created_at of the new and current cursor messages.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_members cm SET last_read_message_id=$3, last_read_at=$4") +
		".*" + regexp.QuoteMeta("cm.last_read_message_id IS NULL") +
		".*" + regexp.QuoteMeta("(SELECT created_at FROM messages WHERE id=$3) >=") +
		".*" + regexp.QuoteMeta("(SELECT created_at FROM messages WHERE id=cm.last_read_message_id)")).
		WithArgs(testChatID, "alice", testMsgID, readAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewMembershipRepo(db).AdvanceReadCursor(context.Background(), testChatID, "alice", testMsgID, readAt)
	assert.NoError(t, err, "an older receipt updates no row and is not an error")
}
