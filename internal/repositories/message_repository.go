package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"family-chat/internal/models"
)

var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrDuplicateClientID = errors.New("message with this client id already exists")
)

const uniqueViolation = "23505"

const messageColumns = `id, chat_id, sender_id, body, client_id, created_at, edited_at, deleted`

// MessageRepository defines persistence for chat messages.
type MessageRepository interface {
	// CreateMessage returns ErrDuplicateClientID when (chatID, clientID) is taken.
	CreateMessage(ctx context.Context, chatID, senderID, body, clientID string) (models.Message, error)
	FindByChatAndClientID(ctx context.Context, chatID, clientID string) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and bumps the chat's updated_at in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID, body, clientID string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var msg models.Message
	query := `INSERT INTO messages (id, chat_id, sender_id, body, client_id) VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (chat_id, client_id) DO NOTHING
        RETURNING ` + messageColumns
	err = tx.GetContext(ctx, &msg, query, uuid.NewString(), chatID, senderID, body, nullable(clientID))
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		return models.Message{}, ErrDuplicateClientID
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at=$2 WHERE id=$1`, chatID, msg.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("touch chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return models.Message{}, ErrDuplicateClientID
		}
		return models.Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

// FindByChatAndClientID looks a message up by its idempotency key.
func (r *MessageRepo) FindByChatAndClientID(ctx context.Context, chatID, clientID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 AND client_id=$2`, chatID, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
