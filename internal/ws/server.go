package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"family-chat/internal/middleware"
	"family-chat/internal/observability"
	"family-chat/internal/realtime"
)

const disconnectTimeout = 5 * time.Second

// Dispatcher runs one client event.
type Dispatcher interface {
	Dispatch(ctx context.Context, s realtime.Session, event string, data json.RawMessage, ack realtime.AckFunc)
}

// Lifecycle is told about every connection that opens and closes.
type Lifecycle interface {
	Connect(ctx context.Context, s realtime.Session)
	Disconnect(ctx context.Context, s realtime.Session)
}

type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	AllowedOrigins []string
}

// Server upgrades authenticated requests and runs each connection's read loop.
type Server struct {
	hub        *Hub
	dispatcher Dispatcher
	lifecycle  Lifecycle
	events     *observability.EventPublisher
	upgrader   websocket.Upgrader
	opts       Options
	log        *zap.Logger
}

func NewServer(hub *Hub, dispatcher Dispatcher, lifecycle Lifecycle, events *observability.EventPublisher, opts Options, log *zap.Logger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		hub:        hub,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		events:     events,
		opts:       opts,
		log:        log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

// originChecker allows any origin when none are configured or "*" is listed.
// Requests without an Origin header come from non-browser clients and pass.
func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// Handle must run behind middleware.AuthMiddleware.
func (s *Server) Handle(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx, span := otel.Tracer("family-chat/ws").Start(c.Request.Context(), "ws.handshake")
	traceID := span.SpanContext().TraceID().String()
	span.End()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	identity := observability.IdentityFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    identity.DeviceID,
		IP:          identity.IP,
		UserAgent:   identity.UserAgent,
		RequestID:   c.GetString(middleware.RequestIDKey),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := newClient(info, conn, s.opts.SendBuffer, s.log)
	session := realtime.Session{ConnID: info.ConnID, UserID: userID}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.hub.Register(client)
	observability.IncWSActive()
	s.publishLifecycle(ctx, "ws_connect", info, "")
	s.log.Info("websocket connected", zap.String("conn_id", info.ConnID), zap.String("user_id", userID), zap.String("ip", info.IP))

	go client.writePump(s.opts.PingInterval)
	s.lifecycle.Connect(ctx, session)

	reason := s.readLoop(ctx, client, session)

	client.close()
	s.hub.Unregister(client)
	observability.DecWSActive()

	cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cleanupCancel()
	s.lifecycle.Disconnect(cleanupCtx, session)
	s.publishLifecycle(cleanupCtx, "ws_disconnect", info, reason)
	s.log.Info("websocket disconnected",
		zap.String("conn_id", info.ConnID),
		zap.String("user_id", userID),
		zap.Duration("duration", time.Since(info.ConnectedAt)),
		zap.String("reason", reason),
	)
}

// readLoop dispatches frames one at a time so a connection's events are
// handled in arrival order. It returns the close reason.
func (s *Server) readLoop(ctx context.Context, client *Client, session realtime.Session) string {
	conn := client.conn
	pongWait := 2 * s.opts.PingInterval
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if client.closed() {
				return "server closed"
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.publishLifecycle(ctx, "ws_error", client.info, err.Error())
			}
			return err.Error()
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.rejectFrame(client, err)
			continue
		}
		s.dispatcher.Dispatch(ctx, session, frame.Event, frame.Data, s.ackFunc(client, frame))
	}
}

func (s *Server) ackFunc(client *Client, frame inboundFrame) realtime.AckFunc {
	if frame.AckID == nil {
		return nil
	}
	ackID := *frame.AckID
	return func(ack realtime.Ack) {
		out, err := encodeAck(ackID, ack)
		if err != nil {
			s.log.Error("encode ack", zap.String("conn_id", client.ID()), zap.String("event", frame.Event), zap.Error(err))
			return
		}
		client.enqueue(out)
	}
}

// rejectFrame answers a frame that is not valid JSON. There is no ack id to
// reply to, so the failure goes out as an error event.
func (s *Server) rejectFrame(client *Client, err error) {
	correlationID := uuid.NewString()
	s.log.Info("malformed websocket frame",
		zap.String("conn_id", client.ID()),
		zap.String("user_id", client.UserID()),
		zap.String("correlation_id", correlationID),
		zap.Error(err),
	)
	out, encErr := encodeEvent(eventError, realtime.Ack{
		OK:            false,
		Error:         realtime.CodeValidation,
		Message:       "malformed frame",
		CorrelationID: correlationID,
	})
	if encErr == nil {
		client.enqueue(out)
	}
}

func (s *Server) publishLifecycle(ctx context.Context, name string, info ConnInfo, reason string) {
	observability.IncWSLifecycle(name)
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": info.identity(),
	}
	err := s.events.PublishEvent(ctx, observability.RoutingKeyWSEvents, observability.EventEnvelope{
		EventType: observability.EventTypeWS,
		EventName: name,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	if err != nil {
		s.log.Warn("publish websocket lifecycle event", zap.String("event", name), zap.String("conn_id", info.ConnID), zap.Error(err))
	}
}
