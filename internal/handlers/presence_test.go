package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"family-chat/internal/middleware"
	"family-chat/internal/mocks"
	"family-chat/internal/presence"
	"family-chat/internal/telemetry"
)

func setupPresenceRouter(handler *PresenceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "alice")
		c.Next()
	})
	r.GET("/presence/:user_id", handler.GetPresence)
	r.GET("/healthz", Healthz)
	return r
}

func TestGetPresenceSelf(t *testing.T) {
	tracker := presence.NewTracker()
	tracker.AddConnection("alice", "c1")
	tracker.AddConnection("alice", "c2")
	members := new(mocks.MembershipRepositoryMock)
	router := setupPresenceRouter(NewPresenceHandler(tracker, members, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence/alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp presenceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, presenceResponse{UserID: "alice", Online: true, Connections: 2}, resp)
	members.AssertNotCalled(t, "ListContacts", mock.Anything, mock.Anything)
}

func TestGetPresenceContact(t *testing.T) {
	tracker := presence.NewTracker()
	members := new(mocks.MembershipRepositoryMock)
	router := setupPresenceRouter(NewPresenceHandler(tracker, members, nil))

	members.On("ListContacts", mock.Anything, "alice").Return([]string{"bob"}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence/bob", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp presenceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Online)
	members.AssertExpectations(t)
}

func TestGetPresenceStranger(t *testing.T) {
	members := new(mocks.MembershipRepositoryMock)
	router := setupPresenceRouter(NewPresenceHandler(presence.NewTracker(), members, nil))

	members.On("ListContacts", mock.Anything, "alice").Return([]string{"bob"}, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence/mallory", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	members.AssertExpectations(t)
}

func TestGetPresenceContactsError(t *testing.T) {
	members := new(mocks.MembershipRepositoryMock)
	router := setupPresenceRouter(NewPresenceHandler(presence.NewTracker(), members, nil))

	members.On("ListContacts", mock.Anything, "alice").Return(nil, assert.AnError).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence/bob", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := setupPresenceRouter(NewPresenceHandler(presence.NewTracker(), nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/realtime-audit", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugRealtimeAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pub := new(mocks.PublisherMock)

	var published telemetry.AuditEnvelope
	pub.On("Publish", mock.Anything, telemetry.RoutingKeyAudit, mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).(telemetry.AuditEnvelope) }).
		Return(nil).Once()

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "alice")
		c.Next()
	})
	RegisterDebugRoutes(r, telemetry.NewAuditEmitter(pub, "family-chat", "test", nil), true)

	req := httptest.NewRequest(http.MethodPost, "/debug/realtime-audit", strings.NewReader(`{"event":"room:join","code":"FORBIDDEN"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp["correlationId"])

	assert.Equal(t, resp["correlationId"], published.RequestID)
	assert.Equal(t, "WARN", published.Payload.Level)
	assert.Equal(t, "room:join", published.Payload.Fields["event"])
	assert.Equal(t, "FORBIDDEN", published.Payload.Fields["code"])
	require.NotNil(t, published.UserID)
	assert.Equal(t, "alice", *published.UserID)
	pub.AssertExpectations(t)
}

func TestDebugRealtimeAuditWithoutEmitter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/realtime-audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
