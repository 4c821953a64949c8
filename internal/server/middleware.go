package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

const contextResolutionKey = "api_key_resolution"

// APIKeyRequired authenticates requests with a merchant API key. The key
// alone decides the organization and environment; nothing in the request
// may override them.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		res, err := s.orgSvc.ResolveAPIKey(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextResolutionKey, *res)
		c.Next()
	}
}

// CronAuthRequired gates internal trigger endpoints on a shared token.
func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("X-Cron-Token"))
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		if s.cfg.CronAuthToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CronAuthToken)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func resolutionFrom(c *gin.Context) (orgdomain.Resolution, bool) {
	value, ok := c.Get(contextResolutionKey)
	if !ok {
		return orgdomain.Resolution{}, false
	}
	res, ok := value.(orgdomain.Resolution)
	return res, ok
}
