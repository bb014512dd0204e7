package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"family-chat/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, RoutingKeyAudit, mock.AnythingOfType("telemetry.AuditEnvelope"), map[string]string{"x-request-id": "corr-1"}).
		Return(nil).Once()

	emitter := NewAuditEmitter(pub, "family-chat", "test", zap.NewNop())
	emitter.Emit(context.Background(), "WARN", "forbidden", "corr-1", "u1", map[string]string{"event": "room:join"})

	pub.AssertExpectations(t)
	env := pub.Calls[0].Arguments.Get(2).(AuditEnvelope)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "family-chat", env.Service)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "u1", *env.UserID)
	assert.Equal(t, "room:join", env.Payload.Fields["event"])
}

func TestEmitWithoutUser(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, RoutingKeyAudit, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	NewAuditEmitter(pub, "family-chat", "test", zap.NewNop()).Emit(context.Background(), "ERROR", "boom", "c", "", nil)

	env := pub.Calls[0].Arguments.Get(2).(AuditEnvelope)
	assert.Nil(t, env.UserID)
}

func TestEmitNilSafe(t *testing.T) {
	var e *AuditEmitter
	assert.NotPanics(t, func() { e.Emit(context.Background(), "INFO", "x", "", "", nil) })
}
