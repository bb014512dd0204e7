package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"family-chat/internal/presence"
	"family-chat/internal/repositories"
)

// PresenceHandler answers presence lookups for the caller and their contacts.
type PresenceHandler struct {
	tracker *presence.Tracker
	members repositories.MembershipRepository
	log     *zap.Logger
}

func NewPresenceHandler(tracker *presence.Tracker, members repositories.MembershipRepository, log *zap.Logger) *PresenceHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PresenceHandler{tracker: tracker, members: members, log: log}
}

type presenceResponse struct {
	UserID      string `json:"userId"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

// GetPresence reports whether a user is online on this instance. Only the user
// themselves and people sharing a chat with them may ask.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	caller := userIDFromContext(c)
	target := c.Param("user_id")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}

	if target != caller {
		contacts, err := h.members.ListContacts(c.Request.Context(), caller)
		if err != nil {
			h.log.Error("list contacts", zap.String("user_id", caller), zap.String("request_id", requestIDFromContext(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contacts"})
			return
		}
		if !lo.Contains(contacts, target) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a contact"})
			return
		}
	}

	c.JSON(http.StatusOK, presenceResponse{
		UserID:      target,
		Online:      h.tracker.IsOnline(target),
		Connections: h.tracker.Connections(target),
	})
}

// Healthz is the HTTP liveness check.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
