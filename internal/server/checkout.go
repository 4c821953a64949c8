package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type checkoutStatusResponse struct {
	CheckoutID string `json:"checkout_id"`
	Status     string `json:"status"`
}

// GetCheckoutStatus re-checks chain truth for the checkout before
// answering, so a poll observes settlement even when no webhook arrived.
func (s *Server) GetCheckoutStatus(c *gin.Context) {
	res, ok := resolutionFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	checkoutID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	co, err := s.checkoutSvc.SweepAndRefreshStatus(c.Request.Context(), res.OrgID, res.Environment, checkoutID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, checkoutStatusResponse{
		CheckoutID: co.ID.String(),
		Status:     string(co.Status),
	})
}
