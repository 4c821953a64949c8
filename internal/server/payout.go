package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	payoutdomain "github.com/meridianhq/meridian/internal/payout/domain"
)

type payoutRequest struct {
	Items []payoutdomain.Request `json:"items"`
}

type payoutItemResponse struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	WalletAddress string `json:"wallet_address"`
	Memo          string `json:"memo,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

type payoutResponse struct {
	Payouts []payoutItemResponse `json:"payouts"`
}

// RequestPayouts creates the whole batch or nothing.
func (s *Server) RequestPayouts(c *gin.Context) {
	res, ok := resolutionFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	created, err := s.payoutSvc.RequestPayouts(c.Request.Context(), res.OrgID, res.Environment, req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.metrics.RecordPayoutRequests(c.Request.Context(), len(created))

	resp := payoutResponse{Payouts: make([]payoutItemResponse, 0, len(created))}
	for _, p := range created {
		resp.Payouts = append(resp.Payouts, payoutItemResponse{
			ID:            p.ID.String(),
			Amount:        p.Amount,
			WalletAddress: p.WalletAddress,
			Memo:          p.Memo,
			Status:        string(p.Status),
			CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusCreated, resp)
}
