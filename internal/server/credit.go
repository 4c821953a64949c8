package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type creditBalanceResponse struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	Balance    int64  `json:"balance"`
}

func (s *Server) GetCreditBalance(c *gin.Context) {
	res, ok := resolutionFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	customerID, err := snowflake.ParseString(c.Query("customer_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	productID, err := snowflake.ParseString(c.Query("product_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.creditSvc.Balance(c.Request.Context(), res.OrgID, customerID, productID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, creditBalanceResponse{
		CustomerID: customerID.String(),
		ProductID:  productID.String(),
		Balance:    balance,
	})
}
