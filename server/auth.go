package server

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
)

const headerAPIKey = "X-API-Key"

// apiKeyAuth rejects requests that do not carry the configured key in the
// X-API-Key header. It runs before any store operation, so an unauthenticated
// request never touches the backend.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerAPIKey)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			authFailuresCounter.Inc()
			c.AbortWithStatusJSON(ErrUnauthorized.HTTPStatus, gin.H{"error": ErrUnauthorized.Message})
			return
		}
		c.Next()
	}
}
