package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stellarWebhookRequest struct {
	APIKey     string          `json:"api_key"`
	CheckoutID string          `json:"checkout_id"`
	Signature  string          `json:"signature"`
	Payload    json.RawMessage `json:"payload"`
}

// HandleStellarWebhook applies a signed settlement notification. The API
// key travels in the body because chain notifiers cannot set headers.
// Signature verification happens against the raw payload bytes, before
// anything in them is trusted.
func (s *Server) HandleStellarWebhook(c *gin.Context) {
	var req stellarWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.APIKey) == "" || len(req.Payload) == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.orgSvc.ResolveAPIKey(c.Request.Context(), req.APIKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.webhookLimiter.Enabled() {
		allowed, limitErr := s.webhookLimiter.AllowOrg(c.Request.Context(), res.OrgID.String())
		if limitErr != nil {
			// Redis trouble never drops a settlement notification.
			s.log.Warn("webhook rate limiter unavailable", zap.Error(limitErr))
		} else if !allowed {
			s.metrics.RecordWebhookDenied(c.Request.Context(), string(res.Environment), "rate_limited")
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}
	s.metrics.RecordWebhookAllowed(c.Request.Context(), string(res.Environment))

	checkoutID, err := snowflake.ParseString(req.CheckoutID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	co, err := s.webhookApplier.Apply(c.Request.Context(), res.OrgID, res.Environment, checkoutID, req.Payload, req.Signature)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.metrics.RecordSettlementEvent(c.Request.Context(), string(co.Status))

	c.JSON(http.StatusOK, checkoutStatusResponse{
		CheckoutID: co.ID.String(),
		Status:     string(co.Status),
	})
}
