package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"family-chat/internal/models"
)

var ErrNotMember = errors.New("not a chat member")

// MembershipRepository abstracts chat membership lookups and read cursors.
type MembershipRepository interface {
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
	GetRole(ctx context.Context, chatID, userID string) (models.Role, error)
	AdvanceReadCursor(ctx context.Context, chatID, userID, messageID string, readAt time.Time) error
	ListContacts(ctx context.Context, userID string) ([]string, error)
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// IsMember checks whether a user belongs to the chat.
func (r *MembershipRepo) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// GetRole returns the member's role, or ErrNotMember.
func (r *MembershipRepo) GetRole(ctx context.Context, chatID, userID string) (models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, `SELECT role FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotMember
	}
	return role, err
}

// AdvanceReadCursor moves the member's read cursor to messageID unless the
// current cursor already points at a newer message.
func (r *MembershipRepo) AdvanceReadCursor(ctx context.Context, chatID, userID, messageID string, readAt time.Time) error {
	query := `UPDATE chat_members cm SET last_read_message_id=$3, last_read_at=$4
        WHERE cm.chat_id=$1 AND cm.user_id=$2
        AND (cm.last_read_message_id IS NULL
            OR (SELECT created_at FROM messages WHERE id=$3) >=
               (SELECT created_at FROM messages WHERE id=cm.last_read_message_id))`
	_, err := r.db.ExecContext(ctx, query, chatID, userID, messageID, readAt)
	return err
}

// ListContacts returns every user sharing at least one chat with userID.
func (r *MembershipRepo) ListContacts(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT DISTINCT other.user_id FROM chat_members me
        JOIN chat_members other ON other.chat_id = me.chat_id
        WHERE me.user_id=$1 AND other.user_id<>$1`
	var ids []string
	err := r.db.SelectContext(ctx, &ids, query, userID)
	return ids, err
}
