package api

import (
	"net/http" // HTTP status codes

	"receipt_desk/internal/service" // Ticket service

	"github.com/gin-gonic/gin" // Gin web framework
)

// HealthHandler reports backend, cache and optional integration state
func HealthHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := svc.Health(c.Request.Context())
		status := http.StatusOK
		message := "Server is running"
		if !report.OK() {
			status = http.StatusServiceUnavailable
			message = "Server is running with degraded dependencies"
		}
		c.JSON(status, gin.H{
			"status":        report.Status,    // ok or degraded
			"message":       message,          // Human readable summary
			"backend":       report.Backend,   // Database and blob store
			"cache":         report.Cache,     // Redis
			"eventsEnabled": report.Events,    // RabbitMQ configured
			"ocrEnabled":    report.OCR,       // OpenAI configured
			"checkedAt":     report.CheckedAt, // Time of the check
		})
	}
}
