package models

import "time"

// Role is a member's role inside a chat.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership links a user to a chat and carries the user's read cursor.
type Membership struct {
	ChatID            string     `db:"chat_id" json:"chatId" bson:"chatId"`
	UserID            string     `db:"user_id" json:"userId" bson:"userId"`
	Role              Role       `db:"role" json:"role" bson:"role"`
	LastReadMessageID *string    `db:"last_read_message_id" json:"lastReadMessageId,omitempty" bson:"lastReadMessageId,omitempty"`
	LastReadAt        *time.Time `db:"last_read_at" json:"lastReadAt,omitempty" bson:"lastReadAt,omitempty"`
	JoinedAt          time.Time  `db:"joined_at" json:"joinedAt" bson:"joinedAt"`
}

// User is the slice of a family member profile the chat core reads.
type User struct {
	ID          string `db:"id" json:"id" bson:"_id"`
	DisplayName string `db:"display_name" json:"displayName" bson:"displayName"`
}
