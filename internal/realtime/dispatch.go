package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"family-chat/internal/observability"
)

const tracerName = "family-chat/realtime"

// Dispatch runs the handler registered for event. Acknowledged events call
// ack exactly once; fire-and-forget events never call it. Dispatch never panics.
func (h *Handlers) Dispatch(ctx context.Context, s Session, event string, data json.RawMessage, ack AckFunc) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ws."+event, trace.WithAttributes(
		attribute.String("ws.event", event),
		attribute.String("ws.conn_id", s.ConnID),
		attribute.String("user.id", s.UserID),
	))
	defer span.End()

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	respond := once(ack)
	r, ok := h.routes[event]
	if !ok {
		err := newError(CodeValidation, "unknown event %q", event)
		h.fail(ctx, span, s, event, err, respond)
		observability.ObserveWSEvent("unknown", string(CodeValidation), time.Since(start))
		return
	}

	result, err := h.call(ctx, s, r.handle, data)
	if err != nil {
		if r.acked {
			h.fail(ctx, span, s, event, err, respond)
		} else {
			h.dropped(span, s, event, err)
		}
		observability.ObserveWSEvent(event, string(CodeOf(err)), time.Since(start))
		return
	}

	if r.acked {
		respond(Ack{OK: true, Data: result})
	}
	observability.ObserveWSEvent(event, "ok", time.Since(start))
}

func (h *Handlers) call(ctx context.Context, s Session, handle handlerFunc, data json.RawMessage) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &Error{Code: CodeInternal, Message: "internal error", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return handle(ctx, s, data)
}

// fail acknowledges an error with a fresh correlation id.
func (h *Handlers) fail(ctx context.Context, span trace.Span, s Session, event string, err error, respond AckFunc) {
	code := CodeOf(err)
	correlationID := uuid.NewString()

	fields := []zap.Field{
		zap.String("conn_id", s.ConnID),
		zap.String("event", event),
		zap.String("user_id", s.UserID),
		zap.String("code", string(code)),
		zap.String("correlation_id", correlationID),
		zap.Error(err),
	}
	span.SetAttributes(attribute.String("ws.error_code", string(code)), attribute.String("correlation_id", correlationID))

	switch code {
	case CodeInternal:
		span.SetStatus(codes.Error, err.Error())
		h.log.Error("event failed", fields...)
		h.audit.Emit(context.WithoutCancel(ctx), "ERROR", "realtime event failed", correlationID, s.UserID, map[string]string{"event": event, "code": string(code)})
	case CodeForbidden:
		h.log.Warn("event forbidden", fields...)
		h.audit.Emit(context.WithoutCancel(ctx), "WARN", "realtime event forbidden", correlationID, s.UserID, map[string]string{"event": event, "code": string(code)})
	default:
		h.log.Info("event rejected", fields...)
	}

	respond(Ack{
		OK:            false,
		Error:         code,
		Message:       publicMessage(err),
		CorrelationID: correlationID,
	})
}

// dropped logs a fire-and-forget failure; the client is never told.
func (h *Handlers) dropped(span trace.Span, s Session, event string, err error) {
	code := CodeOf(err)
	span.SetAttributes(attribute.String("ws.error_code", string(code)))
	level := h.log.Debug
	if code == CodeInternal {
		span.SetStatus(codes.Error, err.Error())
		level = h.log.Warn
	}
	level("fire-and-forget event dropped",
		zap.String("conn_id", s.ConnID),
		zap.String("event", event),
		zap.String("user_id", s.UserID),
		zap.String("code", string(code)),
		zap.Error(err),
	)
}

func once(ack AckFunc) AckFunc {
	if ack == nil {
		return func(Ack) {}
	}
	var o sync.Once
	return func(a Ack) {
		o.Do(func() { ack(a) })
	}
}
