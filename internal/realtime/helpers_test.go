package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"family-chat/internal/mocks"
	"family-chat/internal/ratelimit"
)

const (
	chatA = "2f1c8a8e-3a7b-4c55-9f3e-1d2b3c4d5e6f"
	chatB = "8d0a6c1e-5b4f-4e2a-a1c3-7f6e5d4c3b2a"
	msgID = "c3a1b2d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
)

type sent struct {
	Room    string
	Except  string
	Users   []string
	Event   string
	Payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	joined map[string][]string
	sent   []sent
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{joined: make(map[string][]string)}
}

func (f *fakeBroadcaster) Join(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[connID] = append(f.joined[connID], room)
}

func (f *fakeBroadcaster) Leave(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rooms := f.joined[connID][:0]
	for _, r := range f.joined[connID] {
		if r != room {
			rooms = append(rooms, r)
		}
	}
	f.joined[connID] = rooms
}

func (f *fakeBroadcaster) BroadcastToRoom(room, exceptConnID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{Room: room, Except: exceptConnID, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) EmitToUsers(userIDs []string, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{Users: append([]string(nil), userIDs...), Event: event, Payload: payload})
}

func (f *fakeBroadcaster) events(name string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.Event == name {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeBroadcaster) rooms(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joined[connID]...)
}

type fixture struct {
	members  *mocks.MembershipRepositoryMock
	messages *mocks.MessageRepositoryMock
	users    *mocks.UserRepositoryMock
	bcast    *fakeBroadcaster
	limiter  *ratelimit.Limiter
	handlers *Handlers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		members:  new(mocks.MembershipRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
		bcast:    newFakeBroadcaster(),
		limiter:  ratelimit.New(10, 10*time.Second),
	}
	f.handlers = NewHandlers(Dependencies{
		Members:  f.members,
		Messages: f.messages,
		Users:    f.users,
		Limiter:  f.limiter,
		Rooms:    NewRoomManager(f.bcast),
		Timeout:  time.Second,
	})
	t.Cleanup(func() {
		f.members.AssertExpectations(t)
		f.messages.AssertExpectations(t)
		f.users.AssertExpectations(t)
	})
	return f
}

// recorder collects every ack a dispatch produced.
type recorder struct {
	mu   sync.Mutex
	acks []Ack
}

func (r *recorder) ack(a Ack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, a)
}

func (r *recorder) only(t *testing.T) Ack {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.acks, 1, "exactly one ack per acknowledged event")
	return r.acks[0]
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
