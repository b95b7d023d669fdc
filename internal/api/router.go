package api

import (
	"receipt_desk/internal/auth"       // Admin sessions and lockout
	"receipt_desk/internal/middleware" // Auth, admin and CORS middleware
	"receipt_desk/internal/service"    // Ticket service

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// Deps is everything the HTTP layer needs
type Deps struct {
	DB          *gorm.DB               // Admin accounts
	Tickets     *service.TicketService // Ticket operations
	Sessions    *auth.SessionStore     // Admin sessions
	Lockout     *auth.Lockout          // Login lockout
	JWTSecret   string                 // Token signing secret
	UploadsDir  string                 // Served at /uploads when receipts live on disk
	CORSOrigins []string               // Allowed browser origins
}

// SetupRouter builds the gin engine. Every route is mounted at the root and
// again under /api.
func SetupRouter(d Deps) *gin.Engine {
	r := gin.Default() // Logger and recovery middleware
	r.Use(middleware.CORSMiddleware(d.CORSOrigins))

	registerRoutes(&r.RouterGroup, d)
	registerRoutes(r.Group("/api"), d)
	return r
}

func registerRoutes(g *gin.RouterGroup, d Deps) {
	requireAdmin := []gin.HandlerFunc{
		middleware.SessionAuthMiddleware(d.JWTSecret, d.Sessions), // Token and live session
		middleware.AdminOnlyMiddleware(d.DB),                      // Admin role
	}

	g.GET("/health", HealthHandler(d.Tickets)) // Health endpoint
	if d.UploadsDir != "" {
		g.Static("/uploads", d.UploadsDir) // Receipt files of the disk blob store
	}

	// Auth routes
	authGroup := g.Group("/auth")
	authGroup.POST("/login", LoginHandler(AuthDeps{
		DB:        d.DB,
		Sessions:  d.Sessions,
		Lockout:   d.Lockout,
		JWTSecret: d.JWTSecret,
	}))
	authGroup.GET("/session", append(requireAdmin, SessionHandler())...)         // Current session
	authGroup.POST("/logout", append(requireAdmin, LogoutHandler(d.Sessions))...) // Revoke session

	// Public ticket routes: submitters have no account
	tickets := g.Group("/tickets")
	tickets.POST("", CreateTicketHandler(d.Tickets))               // Submit a receipt
	tickets.GET("/user/:userId", GetUserTicketsHandler(d.Tickets)) // A submitter's own tickets

	// Review routes (admin session required)
	review := tickets.Group("", requireAdmin...)
	review.GET("", ListTicketsHandler(d.Tickets))                 // List and filter
	review.GET("/:id", GetTicketHandler(d.Tickets))               // Single ticket
	review.PATCH("/:id", UpdateTicketHandler(d.Tickets))          // Status and note
	review.DELETE("/:id", DeleteTicketHandler(d.Tickets))         // Remove ticket and receipt
	review.POST("/:id/analysis", AnalyzeTicketHandler(d.Tickets)) // Advisory heuristics
}
