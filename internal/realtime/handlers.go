package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"family-chat/internal/observability"
	"family-chat/internal/ratelimit"
	"family-chat/internal/repositories"
	"family-chat/internal/telemetry"
)

// Dependencies wires the collaborators every event handler draws on.
type Dependencies struct {
	Members  repositories.MembershipRepository
	Messages repositories.MessageRepository
	Users    repositories.UserRepository
	Limiter  *ratelimit.Limiter
	Rooms    *RoomManager
	Audit    *telemetry.AuditEmitter
	Log      *zap.Logger
	// Timeout bounds each handler's store I/O. Zero means no bound.
	Timeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type handlerFunc func(ctx context.Context, s Session, data json.RawMessage) (any, error)

type route struct {
	handle handlerFunc
	acked  bool
}

// Handlers implements every client event.
type Handlers struct {
	members  repositories.MembershipRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	limiter  *ratelimit.Limiter
	rooms    *RoomManager
	audit    *telemetry.AuditEmitter
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time
	routes   map[string]route
}

func NewHandlers(d Dependencies) *Handlers {
	h := &Handlers{
		members:  d.Members,
		messages: d.Messages,
		users:    d.Users,
		limiter:  d.Limiter,
		rooms:    d.Rooms,
		audit:    d.Audit,
		log:      d.Log,
		timeout:  d.Timeout,
		now:      d.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	h.routes = map[string]route{
		EventRoomJoin:     {handle: h.JoinRoom, acked: true},
		EventRoomLeave:    {handle: h.LeaveRoom, acked: true},
		EventMessageSend:  {handle: h.SendMessage, acked: true},
		EventReceiptRead:  {handle: h.ReadReceipt, acked: true},
		EventPresencePing: {handle: h.Ping, acked: true},
		EventTypingStart: {handle: func(ctx context.Context, s Session, data json.RawMessage) (any, error) {
			return nil, h.Typing(ctx, s, data, TypingStart)
		}},
		EventTypingStop: {handle: func(ctx context.Context, s Session, data json.RawMessage) (any, error) {
			return nil, h.Typing(ctx, s, data, TypingStop)
		}},
	}
	return h
}

// JoinRoom subscribes the connection to a chat it belongs to.
func (h *Handlers) JoinRoom(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req RoomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	role, err := h.members.GetRole(ctx, req.ChatID, s.UserID)
	if errors.Is(err, repositories.ErrNotMember) {
		return nil, newError(CodeForbidden, "not a chat member")
	}
	if err != nil {
		return nil, internalError("get role", err)
	}

	h.rooms.Join(s.ConnID, req.ChatID)
	h.log.Debug("joined room",
		zap.String("conn_id", s.ConnID),
		zap.String("user_id", s.UserID),
		zap.String("chat_id", req.ChatID),
		zap.String("role", string(role)),
	)
	return nil, nil
}

// LeaveRoom unsubscribes the connection from a chat room.
func (h *Handlers) LeaveRoom(_ context.Context, s Session, data json.RawMessage) (any, error) {
	var req RoomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	h.rooms.Leave(s.ConnID, req.ChatID)
	return nil, nil
}

// SendMessage persists a message once per (chatId, clientId) and fans it out.
func (h *Handlers) SendMessage(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req SendMessageRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	if !h.limiter.CheckLimit(s.UserID) {
		observability.IncRateLimited()
		return nil, newError(CodeRateLimited, "too many messages, slow down")
	}

	if err := h.requireMember(ctx, req.ChatID, s.UserID); err != nil {
		return nil, err
	}

	existing, err := h.messages.FindByChatAndClientID(ctx, req.ChatID, req.ClientID)
	switch {
	case err == nil:
		return SendMessageResult{ClientID: req.ClientID, ServerID: existing.ID}, nil
	case !errors.Is(err, repositories.ErrMessageNotFound):
		return nil, internalError("find by client id", err)
	}

	msg, err := h.messages.CreateMessage(ctx, req.ChatID, s.UserID, req.Body, req.ClientID)
	if errors.Is(err, repositories.ErrDuplicateClientID) {
		// a concurrent send with the same key won the insert
		winner, findErr := h.messages.FindByChatAndClientID(ctx, req.ChatID, req.ClientID)
		if findErr != nil {
			return nil, internalError("find conflicting message", findErr)
		}
		return SendMessageResult{ClientID: req.ClientID, ServerID: winner.ID}, nil
	}
	if err != nil {
		return nil, internalError("create message", err)
	}

	h.rooms.Broadcast(req.ChatID, s.ConnID, EventMessageNew, MessageNew{
		Message:    msg,
		SenderName: h.displayName(ctx, s.UserID),
	})
	return SendMessageResult{ClientID: req.ClientID, ServerID: msg.ID}, nil
}

// Typing relays a typing indicator to the rest of the room.
func (h *Handlers) Typing(ctx context.Context, s Session, data json.RawMessage, state TypingState) error {
	var req TypingRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := h.requireMember(ctx, req.ChatID, s.UserID); err != nil {
		return err
	}
	h.rooms.Broadcast(req.ChatID, s.ConnID, EventTypingUpdate, TypingUpdate{
		ChatID: req.ChatID,
		UserID: s.UserID,
		State:  state,
	})
	return nil
}

// ReadReceipt advances the caller's read cursor and tells the room.
func (h *Handlers) ReadReceipt(ctx context.Context, s Session, data json.RawMessage) (any, error) {
	var req ReadReceiptRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := h.requireMember(ctx, req.ChatID, s.UserID); err != nil {
		return nil, err
	}

	msg, err := h.messages.GetMessage(ctx, req.MessageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil, newError(CodeNotFound, "message not found")
	}
	if err != nil {
		return nil, internalError("get message", err)
	}
	if msg.ChatID != req.ChatID {
		return nil, newError(CodeValidation, "message does not belong to chat")
	}

	readAt := h.now().UTC()
	if err := h.members.AdvanceReadCursor(ctx, req.ChatID, s.UserID, req.MessageID, readAt); err != nil {
		return nil, internalError("advance read cursor", err)
	}

	h.rooms.Broadcast(req.ChatID, s.ConnID, EventReceiptUpdate, ReceiptUpdate{
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		UserID:    s.UserID,
		ReadAt:    readAt,
	})
	return ReadReceiptResult{ReadAt: readAt}, nil
}

// Ping answers with the server clock. The payload is ignored.
func (h *Handlers) Ping(context.Context, Session, json.RawMessage) (any, error) {
	return PingResult{ServerTime: h.now().UTC().Format(time.RFC3339Nano)}, nil
}

func (h *Handlers) requireMember(ctx context.Context, chatID, userID string) error {
	ok, err := h.members.IsMember(ctx, chatID, userID)
	if err != nil {
		return internalError("check membership", err)
	}
	if !ok {
		return newError(CodeForbidden, "not a chat member")
	}
	return nil
}

func (h *Handlers) displayName(ctx context.Context, userID string) string {
	if h.users == nil {
		return ""
	}
	name, err := h.users.DisplayName(ctx, userID)
	if err != nil {
		h.log.Debug("display name lookup failed", zap.String("user_id", userID), zap.Error(err))
		return ""
	}
	return name
}
