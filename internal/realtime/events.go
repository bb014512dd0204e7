package realtime

import (
	"time"

	"family-chat/internal/models"
)

// Client to server events.
const (
	EventRoomJoin     = "room:join"
	EventRoomLeave    = "room:leave"
	EventMessageSend  = "message:send"
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
	EventReceiptRead  = "receipt:read"
	EventPresencePing = "presence:ping"
)

// Server to client events.
const (
	EventMessageNew     = "message:new"
	EventTypingUpdate   = "typing:update"
	EventReceiptUpdate  = "receipt:update"
	EventPresenceUpdate = "presence:update"
)

type TypingState string

const (
	TypingStart TypingState = "start"
	TypingStop  TypingState = "stop"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// Session identifies the connection an event arrived on.
type Session struct {
	ConnID string
	UserID string
}

// Ack is the single response to an acknowledged event.
type Ack struct {
	OK            bool   `json:"ok"`
	Data          any    `json:"data,omitempty"`
	Error         Code   `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// AckFunc delivers an Ack to the caller. A nil AckFunc means none was requested.
type AckFunc func(Ack)

type SendMessageResult struct {
	ClientID string `json:"clientId"`
	ServerID string `json:"serverId"`
}

type ReadReceiptResult struct {
	ReadAt time.Time `json:"readAt"`
}

type PingResult struct {
	ServerTime string `json:"serverTime"`
}

type MessageNew struct {
	Message    models.Message `json:"message"`
	SenderName string         `json:"senderName,omitempty"`
}

type TypingUpdate struct {
	ChatID string      `json:"chatId"`
	UserID string      `json:"userId"`
	State  TypingState `json:"state"`
}

type ReceiptUpdate struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

type PresenceUpdate struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
}
