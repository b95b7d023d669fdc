package middleware

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"receipt_desk/internal/auth"  // Admin sessions
	"receipt_desk/internal/utils" // JWT utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// Context keys set by SessionAuthMiddleware
const (
	AdminIDKey   = "adminID"
	SessionIDKey = "sessionID"
	SessionKey   = "session"
)

// SessionAuthMiddleware validates the bearer token and the server-side
// session it names. Every accepted request slides the session window.
func SessionAuthMiddleware(secret string, sessions *auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string
		claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		sess, err := sessions.Touch(c.Request.Context(), claims.SessionID) // Refresh the session window
		if err != nil {
			if !errors.Is(err, auth.ErrSessionNotFound) {
				logrus.WithFields(logrus.Fields{"session_id": claims.SessionID, "error": err.Error()}).Error("Session lookup failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		// A token must never be replayed against another admin's session
		if sess.AdminID != claims.AdminID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(AdminIDKey, sess.AdminID) // Store adminID in context
		c.Set(SessionIDKey, sess.ID)    // Store session ID for logout
		c.Set(SessionKey, sess)         // Store the refreshed session
		c.Next()                        // Proceed to the next handler
	}
}
