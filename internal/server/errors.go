package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
	checkoutdomain "github.com/meridianhq/meridian/internal/checkout/domain"
	creditdomain "github.com/meridianhq/meridian/internal/credit/domain"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	payoutdomain "github.com/meridianhq/meridian/internal/payout/domain"
	"github.com/meridianhq/meridian/internal/planlimit"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var limitErr *planlimit.Exceeded

	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, orgdomain.ErrAPIKeyNotFound),
		errors.Is(err, checkoutdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, checkoutdomain.ErrInvalidPayload),
		errors.Is(err, orgdomain.ErrInvalidEnvironment),
		errors.Is(err, orgdomain.ErrInvalidWebhookSigningKey),
		errors.Is(err, payoutdomain.ErrNoItems),
		errors.Is(err, payoutdomain.ErrInvalidAmount),
		errors.Is(err, payoutdomain.ErrInvalidWalletAddress):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "insufficient credits",
		}
	case errors.As(err, &limitErr):
		return http.StatusForbidden, errorPayload{
			Type:    "plan_limit_exceeded",
			Message: limitErr.Error(),
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, checkoutdomain.ErrCheckoutNotFound),
		errors.Is(err, orgdomain.ErrOrganizationNotFound),
		errors.Is(err, orgdomain.ErrChainAccountNotConfigured),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, chaindomain.ErrUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog buckets handler errors for structured access logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status >= 400:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
