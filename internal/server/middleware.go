package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenRequired guards the management API with a static bearer token.
// When no token is configured the API is disabled entirely.
func (s *Server) TokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.cfg.APIToken
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		presented := bearerToken(c.GetHeader("Authorization"))
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
