package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"family-chat/internal/telemetry"
)

type realtimeAuditRequest struct {
	Event string `json:"event"`
	Code  string `json:"code"`
}

// RegisterDebugRoutes wires debug-only endpoints. POST /debug/realtime-audit
// emits the same audit record a failed realtime event would, so the broker
// pipeline can be checked end to end without a websocket client.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/realtime-audit", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}

		req := realtimeAuditRequest{Event: "message:send", Code: "INTERNAL"}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
				return
			}
		}

		level := "WARN"
		if req.Code == "INTERNAL" {
			level = "ERROR"
		}
		correlationID := uuid.NewString()
		emitter.Emit(c.Request.Context(), level, "realtime event failed (debug)", correlationID, userIDFromContext(c), map[string]string{
			"event":      req.Event,
			"code":       req.Code,
			"request_id": requestIDFromContext(c),
		})
		c.JSON(http.StatusAccepted, gin.H{"correlationId": correlationID})
	})
}
