package models

import "time"

// MaxBodyLength is the longest accepted message body, in characters.
const MaxBodyLength = 8000

// Message represents a chat message.
type Message struct {
	ID        string     `db:"id" json:"id" bson:"_id"`
	ChatID    string     `db:"chat_id" json:"chatId" bson:"chatId"`
	SenderID  string     `db:"sender_id" json:"senderId" bson:"senderId"`
	Body      string     `db:"body" json:"body" bson:"body"`
	ClientID  *string    `db:"client_id" json:"clientId,omitempty" bson:"clientId,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt" bson:"createdAt"`
	EditedAt  *time.Time `db:"edited_at" json:"editedAt,omitempty" bson:"editedAt,omitempty"`
	Deleted   bool       `db:"deleted" json:"deleted" bson:"deleted"`
}
