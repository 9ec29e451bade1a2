package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxKeyUserID = "auth_user_id"
	ctxKeyToken  = "auth_token"
)

// Middleware resolves the session token from the Authorization header or the
// auth cookie and loads the owning user id into the request context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader(s.headerName))
		if token == "" {
			if cookie, err := c.Cookie(s.cookieName); err == nil {
				token = cookie
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxKeyUserID, userID)
		c.Set(ctxKeyToken, token)
		c.Next()
	}
}

// UserIDFromContext returns the user id stored by Middleware.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(ctxKeyUserID)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// AuthTokenFromContext returns the session token stored by Middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(ctxKeyToken)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// bearerToken extracts the credential from an Authorization header value.
// Returns "" when the header is absent or not a bearer scheme.
func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
