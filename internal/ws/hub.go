package ws

import (
	"sync"

	"go.uber.org/zap"

	"family-chat/internal/realtime"
)

// Hub maintains live connections, their rooms and a per-user index.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	byUser  map[string]map[string]*Client
	// joined tracks each connection's rooms so Unregister can drop them all.
	joined map[string]map[string]struct{}
	log    *zap.Logger
}

var _ realtime.Broadcaster = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		byUser:  make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
		log:     log,
	}
}

// Register makes the client reachable by connection and user id.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
	if _, ok := h.byUser[c.UserID()]; !ok {
		h.byUser[c.UserID()] = make(map[string]*Client)
	}
	h.byUser[c.UserID()][c.ID()] = c
}

// Unregister removes the client from every room and index.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	connID := c.ID()
	for room := range h.joined[connID] {
		h.leaveLocked(connID, room)
	}
	delete(h.joined, connID)
	delete(h.clients, connID)
	if conns, ok := h.byUser[c.UserID()]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
}

// Join adds a registered connection to room. Unknown connections are ignored.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][connID] = c
	if _, ok := h.joined[connID]; !ok {
		h.joined[connID] = make(map[string]struct{})
	}
	h.joined[connID][room] = struct{}{}
}

func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, room)
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
	}
}

func (h *Hub) leaveLocked(connID, room string) {
	if conns, ok := h.rooms[room]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// BroadcastToRoom sends event to every connection in room except exceptConnID.
func (h *Hub) BroadcastToRoom(room, exceptConnID, event string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event, payload)
}

// EmitToUsers sends event to every connection of each user.
func (h *Hub) EmitToUsers(userIDs []string, event string, payload any) {
	h.mu.RLock()
	var targets []*Client
	for _, userID := range userIDs {
		for _, c := range h.byUser[userID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event, payload)
}

func (h *Hub) deliver(targets []*Client, event string, payload any) {
	if len(targets) == 0 {
		return
	}
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error("encode websocket event", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range targets {
		c.enqueue(frame)
	}
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
