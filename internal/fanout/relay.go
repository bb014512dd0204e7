// Package fanout relays room broadcasts and user emits between realtime
// instances over Redis pub/sub. Presence stays local to each instance.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"family-chat/internal/realtime"
)

const (
	kindRoom  = "room"
	kindUsers = "users"
)

// envelope is one relayed delivery.
type envelope struct {
	Origin  string          `json:"origin"`
	Kind    string          `json:"kind"`
	Room    string          `json:"room,omitempty"`
	Except  string          `json:"except,omitempty"`
	Users   []string        `json:"users,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay delivers locally and republishes every delivery for peer instances.
type Relay struct {
	local   realtime.Broadcaster
	client  *redis.Client
	channel string
	origin  string
	log     *zap.Logger
}

var _ realtime.Broadcaster = (*Relay)(nil)

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

func NewRelay(local realtime.Broadcaster, client *redis.Client, channel string, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		local:   local,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}
}

// Room membership is per connection and therefore per instance.
func (r *Relay) Join(connID, room string) {
	r.local.Join(connID, room)
}

func (r *Relay) Leave(connID, room string) {
	r.local.Leave(connID, room)
}

func (r *Relay) BroadcastToRoom(room, exceptConnID, event string, payload any) {
	r.local.BroadcastToRoom(room, exceptConnID, event, payload)
	r.publish(envelope{Kind: kindRoom, Room: room, Except: exceptConnID, Event: event}, payload)
}

func (r *Relay) EmitToUsers(userIDs []string, event string, payload any) {
	r.local.EmitToUsers(userIDs, event, payload)
	r.publish(envelope{Kind: kindUsers, Users: userIDs, Event: event}, payload)
}

func (r *Relay) publish(env envelope, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("encode relay payload", zap.String("event", env.Event), zap.Error(err))
		return
	}
	env.Origin = r.origin
	env.Payload = raw
	data, err := json.Marshal(env)
	if err != nil {
		r.log.Error("encode relay envelope", zap.String("event", env.Event), zap.Error(err))
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		r.log.Warn("relay publish failed", zap.String("channel", r.channel), zap.String("event", env.Event), zap.Error(err))
	}
}

// Run consumes peer deliveries until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver([]byte(m.Payload))
		}
	}
}

// deliver hands a peer's delivery to the local broadcaster. Our own
// deliveries come back on the channel and are skipped.
func (r *Relay) deliver(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warn("malformed relay envelope", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	switch env.Kind {
	case kindRoom:
		r.local.BroadcastToRoom(env.Room, env.Except, env.Event, env.Payload)
	case kindUsers:
		r.local.EmitToUsers(env.Users, env.Event, env.Payload)
	default:
		r.log.Warn("unknown relay kind", zap.String("kind", env.Kind))
	}
}
