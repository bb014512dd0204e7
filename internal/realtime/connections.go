package realtime

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"family-chat/internal/observability"
	"family-chat/internal/presence"
	"family-chat/internal/repositories"
)

// ConnectionManager tracks connection lifecycles and announces presence
// changes to a user's contacts.
type ConnectionManager struct {
	presence    *presence.Tracker
	members     repositories.MembershipRepository
	broadcaster Broadcaster
	log         *zap.Logger

	// users serializes each user's transition and its announcement so
	// presence updates leave in the order the transitions happened.
	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func NewConnectionManager(tracker *presence.Tracker, members repositories.MembershipRepository, b Broadcaster, log *zap.Logger) *ConnectionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnectionManager{
		presence:    tracker,
		members:     members,
		broadcaster: b,
		log:         log,
		users:       make(map[string]*userLock),
	}
}

// lockUser blocks until the caller owns userID's lifecycle. The returned
// func releases it.
func (m *ConnectionManager) lockUser(userID string) func() {
	m.mu.Lock()
	l, ok := m.users[userID]
	if !ok {
		l = &userLock{}
		m.users[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.users, userID)
		}
		m.mu.Unlock()
	}
}

// Connect registers an authenticated connection. The first connection of a
// user broadcasts them as online.
func (m *ConnectionManager) Connect(ctx context.Context, s Session) {
	defer m.lockUser(s.UserID)()
	online := m.presence.AddConnection(s.UserID, s.ConnID)
	observability.SetOnlineUsers(m.presence.OnlineCount())
	if online {
		m.announce(ctx, s.UserID, StatusOnline)
	}
}

// Disconnect is the cleanup path for a closed connection. Only the last
// connection of a user broadcasts them as offline.
func (m *ConnectionManager) Disconnect(ctx context.Context, s Session) {
	defer m.lockUser(s.UserID)()
	offline := m.presence.RemoveConnection(s.UserID, s.ConnID)
	observability.SetOnlineUsers(m.presence.OnlineCount())
	if offline {
		m.announce(ctx, s.UserID, StatusOffline)
	}
}

func (m *ConnectionManager) announce(ctx context.Context, userID string, status PresenceStatus) {
	contacts, err := m.members.ListContacts(ctx, userID)
	if err != nil {
		m.log.Warn("presence contacts lookup failed",
			zap.String("user_id", userID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}
	contacts = lo.Without(lo.Uniq(contacts), userID)
	if len(contacts) == 0 {
		return
	}
	m.broadcaster.EmitToUsers(contacts, EventPresenceUpdate, PresenceUpdate{UserID: userID, Status: status})
	m.log.Debug("presence changed",
		zap.String("user_id", userID),
		zap.String("status", string(status)),
		zap.Int("audience", len(contacts)),
	)
}
