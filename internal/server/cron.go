package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerChargeSweep kicks off a billing sweep and returns immediately.
// The sweep lock and per-period idempotency keys make overlapping
// triggers harmless.
func (s *Server) TriggerChargeSweep(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: errorPayload{
			Type:    "service_unavailable",
			Message: "scheduler not running in this process",
		}})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.scheduler.RunOnce(ctx); err != nil {
			s.log.Warn("triggered sweep finished with errors", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
