package middleware

import (
	"net/http" // HTTP status codes

	"receipt_desk/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// AdminOnlyMiddleware checks the admin's role from the database on each request
func AdminOnlyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, exists := c.Get(AdminIDKey) // Get adminID from context
		// Check if adminID exists in context
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var admin domain.Admin // Fetch admin from database
		if err := db.WithContext(c.Request.Context()).First(&admin, adminID).Error; err != nil {
			// Deleted accounts lose access even while their session is alive
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		// Check if role is admin
		if admin.Role != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Set("admin", &admin) // Expose the account to handlers
		c.Next()
	}
}
