package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(connID, userID string, buffer int) *Client {
	return newClient(ConnInfo{ConnID: connID, UserID: userID}, nil, buffer, nil)
}

func drain(c *Client) []outboundFrame {
	var frames []outboundFrame
	for {
		select {
		case raw := <-c.send:
			var f outboundFrame
			if err := json.Unmarshal(raw, &f); err == nil {
				frames = append(frames, f)
			}
		default:
			return frames
		}
	}
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub(nil)
	c := testClient("c1", "alice", 4)
	hub.Register(c)

	hub.Join("c1", "chat:1")
	assert.Equal(t, 1, hub.RoomSize("chat:1"))

	hub.Leave("c1", "chat:1")
	assert.Equal(t, 0, hub.RoomSize("chat:1"))
	assert.Empty(t, hub.rooms)
}

func TestHubJoinUnknownConnection(t *testing.T) {
	hub := NewHub(nil)
	hub.Join("ghost", "chat:1")
	assert.Equal(t, 0, hub.RoomSize("chat:1"))
}

func TestHubUnregisterLeavesAllRooms(t *testing.T) {
	hub := NewHub(nil)
	c := testClient("c1", "alice", 4)
	hub.Register(c)
	hub.Join("c1", "chat:1")
	hub.Join("c1", "chat:2")

	hub.Unregister(c)

	assert.Equal(t, 0, hub.RoomSize("chat:1"))
	assert.Equal(t, 0, hub.RoomSize("chat:2"))
	assert.Equal(t, 0, hub.ClientCount())
	assert.Empty(t, hub.byUser)
	assert.Empty(t, hub.joined)
}

func TestHubBroadcastSkipsSender(t *testing.T) {
	hub := NewHub(nil)
	sender := testClient("c1", "alice", 4)
	peer := testClient("c2", "bob", 4)
	outsider := testClient("c3", "carol", 4)
	for _, c := range []*Client{sender, peer, outsider} {
		hub.Register(c)
	}
	hub.Join("c1", "chat:1")
	hub.Join("c2", "chat:1")

	hub.BroadcastToRoom("chat:1", "c1", "typing:update", map[string]string{"chatId": "1"})

	assert.Empty(t, drain(sender))
	assert.Empty(t, drain(outsider))
	frames := drain(peer)
	require.Len(t, frames, 1)
	assert.Equal(t, "typing:update", frames[0].Event)
	assert.Nil(t, frames[0].AckID)
}

func TestHubEmitToUsersReachesEveryTab(t *testing.T) {
	hub := NewHub(nil)
	tab1 := testClient("c1", "bob", 4)
	tab2 := testClient("c2", "bob", 4)
	other := testClient("c3", "carol", 4)
	for _, c := range []*Client{tab1, tab2, other} {
		hub.Register(c)
	}

	hub.EmitToUsers([]string{"bob", "nobody"}, "presence:update", map[string]string{"userId": "alice", "status": "online"})

	assert.Len(t, drain(tab1), 1)
	assert.Len(t, drain(tab2), 1)
	assert.Empty(t, drain(other))
}

func TestHubSkipsClosedClients(t *testing.T) {
	hub := NewHub(nil)
	gone := testClient("c1", "alice", 4)
	live := testClient("c2", "bob", 4)
	hub.Register(gone)
	hub.Register(live)
	hub.Join("c1", "chat:1")
	hub.Join("c2", "chat:1")
	gone.close()

	hub.BroadcastToRoom("chat:1", "", "message:new", map[string]string{"id": "m1"})

	assert.Empty(t, drain(gone))
	assert.Len(t, drain(live), 1)
}

func TestClientClosesOnFullQueue(t *testing.T) {
	c := testClient("c1", "alice", 1)

	assert.True(t, c.enqueue([]byte(`{}`)))
	assert.False(t, c.enqueue([]byte(`{}`)))
	assert.True(t, c.closed())
	assert.False(t, c.enqueue([]byte(`{}`)))
}
