package ws

import (
	"encoding/json"

	"family-chat/internal/realtime"
)

const (
	eventAck   = "ack"
	eventError = "error"
)

// inboundFrame is one client to server text message.
type inboundFrame struct {
	Event string          `json:"event"`
	AckID *int64          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundFrame is one server to client text message, either a pushed
// event or the ack for an inbound frame.
type outboundFrame struct {
	Event string `json:"event"`
	AckID *int64 `json:"ackId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: payload})
}

func encodeAck(ackID int64, ack realtime.Ack) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: eventAck, AckID: &ackID, Data: ack})
}
