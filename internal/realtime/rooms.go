package realtime

const roomPrefix = "chat:"

// Broadcaster is the transport's group-membership and fan-out primitive.
type Broadcaster interface {
	Join(connID, room string)
	Leave(connID, room string)
	// BroadcastToRoom delivers to every connection in room except exceptConnID.
	BroadcastToRoom(room, exceptConnID, event string, payload any)
	EmitToUsers(userIDs []string, event string, payload any)
}

// RoomName is the broadcast room of a chat.
func RoomName(chatID string) string {
	return roomPrefix + chatID
}

// RoomManager maps chats onto transport rooms.
type RoomManager struct {
	broadcaster Broadcaster
}

func NewRoomManager(b Broadcaster) *RoomManager {
	return &RoomManager{broadcaster: b}
}

func (m *RoomManager) Join(connID, chatID string) {
	m.broadcaster.Join(connID, RoomName(chatID))
}

func (m *RoomManager) Leave(connID, chatID string) {
	m.broadcaster.Leave(connID, RoomName(chatID))
}

// Broadcast fans an event out to the chat's room, skipping the sender's connection.
func (m *RoomManager) Broadcast(chatID, senderConnID, event string, payload any) {
	m.broadcaster.BroadcastToRoom(RoomName(chatID), senderConnID, event, payload)
}
