package fanout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	kind    string
	target  string
	except  string
	users   []string
	event   string
	payload any
}

type localSpy struct {
	joined     map[string]string
	deliveries []delivery
}

func (l *localSpy) Join(connID, room string)  { l.joined[connID] = room }
func (l *localSpy) Leave(connID, room string) { delete(l.joined, connID) }

func (l *localSpy) BroadcastToRoom(room, exceptConnID, event string, payload any) {
	l.deliveries = append(l.deliveries, delivery{kind: kindRoom, target: room, except: exceptConnID, event: event, payload: payload})
}

func (l *localSpy) EmitToUsers(userIDs []string, event string, payload any) {
	l.deliveries = append(l.deliveries, delivery{kind: kindUsers, users: userIDs, event: event, payload: payload})
}

func newTestRelay() (*Relay, *localSpy) {
	spy := &localSpy{joined: map[string]string{}}
	return NewRelay(spy, nil, "chat-relay", nil), spy
}

func TestRelayDeliversPeerRoomBroadcast(t *testing.T) {
	relay, spy := newTestRelay()

	data, err := json.Marshal(envelope{
		Origin:  "other-instance",
		Kind:    kindRoom,
		Room:    "chat:1",
		Except:  "conn-9",
		Event:   "message:new",
		Payload: json.RawMessage(`{"id":"m1"}`),
	})
	require.NoError(t, err)

	relay.deliver(data)

	require.Len(t, spy.deliveries, 1)
	d := spy.deliveries[0]
	assert.Equal(t, "chat:1", d.target)
	assert.Equal(t, "conn-9", d.except)
	assert.Equal(t, "message:new", d.event)
	assert.JSONEq(t, `{"id":"m1"}`, string(d.payload.(json.RawMessage)))
}

func TestRelayDeliversPeerUserEmit(t *testing.T) {
	relay, spy := newTestRelay()

	data, err := json.Marshal(envelope{
		Origin:  "other-instance",
		Kind:    kindUsers,
		Users:   []string{"bob", "carol"},
		Event:   "presence:update",
		Payload: json.RawMessage(`{"userId":"alice","status":"online"}`),
	})
	require.NoError(t, err)

	relay.deliver(data)

	require.Len(t, spy.deliveries, 1)
	assert.Equal(t, []string{"bob", "carol"}, spy.deliveries[0].users)
}

func TestRelaySkipsOwnDeliveries(t *testing.T) {
	relay, spy := newTestRelay()

	data, err := json.Marshal(envelope{Origin: relay.origin, Kind: kindRoom, Room: "chat:1", Event: "typing:update"})
	require.NoError(t, err)

	relay.deliver(data)
	assert.Empty(t, spy.deliveries)
}

func TestRelayIgnoresGarbage(t *testing.T) {
	relay, spy := newTestRelay()

	relay.deliver([]byte(`not json`))
	relay.deliver([]byte(`{"origin":"x","kind":"mystery","event":"e"}`))
	assert.Empty(t, spy.deliveries)
}

func TestRelayJoinIsLocal(t *testing.T) {
	relay, spy := newTestRelay()

	relay.Join("c1", "chat:1")
	assert.Equal(t, "chat:1", spy.joined["c1"])
	relay.Leave("c1", "chat:1")
	assert.Empty(t, spy.joined)
}
