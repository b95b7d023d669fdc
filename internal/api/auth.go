package api

import (
	"math"     // Rounding retry-after
	"net/http" // HTTP status codes
	"strconv"  // Header formatting
	"strings"  // String manipulation
	"time"     // Lock durations

	"receipt_desk/internal/auth"       // Admin sessions and lockout
	"receipt_desk/internal/domain"     // Importing domain models
	"receipt_desk/internal/middleware" // Context keys
	"receipt_desk/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// LoginRequest is the admin login body
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// AuthResponse is returned on successful login
type AuthResponse struct {
	Token     string    `json:"token"`     // JWT naming the session
	ExpiresAt time.Time `json:"expiresAt"` // End of the current inactivity window
	Admin     gin.H     `json:"admin"`     // id and username
}

// AuthDeps groups what the auth handlers need
type AuthDeps struct {
	DB        *gorm.DB
	Sessions  *auth.SessionStore
	Lockout   *auth.Lockout
	JWTSecret string
}

// LoginHandler authenticates an admin and opens a session
func LoginHandler(deps AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		username := strings.ToLower(strings.TrimSpace(req.Username)) // Usernames are stored lowercase

		// Refuse locked usernames before touching the password
		locked, err := deps.Lockout.Locked(ctx, username)
		if err != nil {
			logrus.WithFields(logrus.Fields{"username": username, "error": err.Error()}).Error("Lockout lookup failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
			return
		}
		if locked > 0 {
			respondLocked(c, locked)
			return
		}

		var admin domain.Admin // Fetch admin from database
		found := deps.DB.WithContext(ctx).Where("username = ?", username).First(&admin).Error == nil
		var ok bool
		if found {
			ok = utils.VerifyPassword(admin.Password, req.Password)
		} else {
			ok = utils.RejectPassword(req.Password) // Same bcrypt cost as a real check
		}
		if !ok {
			remaining, lockedFor, err := deps.Lockout.RegisterFailure(ctx, username)
			if err != nil {
				logrus.WithFields(logrus.Fields{"username": username, "error": err.Error()}).Error("Failed to record login failure")
			}
			logrus.WithFields(logrus.Fields{
				"username":  username,  // Attempted username
				"remaining": remaining, // Attempts left before lock
			}).Warn("Admin login failed")
			if lockedFor > 0 {
				respondLocked(c, lockedFor)
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password", "remainingAttempts": remaining})
			return
		}

		if err := deps.Lockout.Reset(ctx, username); err != nil {
			logrus.WithFields(logrus.Fields{"username": username, "error": err.Error()}).Warn("Failed to reset login failures")
		}
		sess, err := deps.Sessions.Create(ctx, admin.ID, admin.Username)
		if err != nil {
			logrus.WithFields(logrus.Fields{"admin_id": admin.ID, "error": err.Error()}).Error("Failed to create session")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
			return
		}
		token, err := utils.GenerateJWT(admin.ID, sess.ID, deps.JWTSecret, sess.CreatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		logrus.WithFields(logrus.Fields{"admin_id": admin.ID, "session_id": sess.ID}).Info("Admin logged in")
		c.JSON(http.StatusOK, AuthResponse{
			Token:     token,
			ExpiresAt: sess.ExpiresAt,
			Admin:     gin.H{"id": admin.ID, "username": admin.Username},
		})
	}
}

// LogoutHandler revokes the caller's session
func LogoutHandler(sessions *auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetString(middleware.SessionIDKey) // Set by the session middleware
		if err := sessions.Revoke(c.Request.Context(), sessionID); err != nil {
			logrus.WithFields(logrus.Fields{"session_id": sessionID, "error": err.Error()}).Error("Failed to revoke session")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// SessionHandler describes the caller's session
func SessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get(middleware.SessionKey)
		sess, ok := v.(*auth.Session)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"adminId":   sess.AdminID,   // Signed-in admin
			"username":  sess.Username,  // Admin username
			"expiresAt": sess.ExpiresAt, // Slides with every request
		})
	}
}

func respondLocked(c *gin.Context, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	c.Header("Retry-After", strconv.Itoa(secs))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "Too many failed login attempts. Try again later.",
		"retryAfter": secs,
	})
}
