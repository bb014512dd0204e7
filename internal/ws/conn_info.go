package ws

import "time"

// ConnInfo is what the handshake recorded about a connection.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	UserAgent   string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) identity() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    i.UserID,
		"device_id":  i.DeviceID,
		"ip":         i.IP,
		"user_agent": i.UserAgent,
	}
}
