package api

import (
	"errors"   // Error inspection
	"io"       // Detecting an empty body
	"net/http" // HTTP status codes

	"receipt_desk/internal/service" // Ticket service

	"github.com/gin-gonic/gin" // Gin web framework
)

// AnalysisRequest optionally carries already extracted receipt text
type AnalysisRequest struct {
	Text string `json:"text"` // Skip OCR when set
}

// AnalyzeTicketHandler returns advisory heuristics for a ticket's receipt
func AnalyzeTicketHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ticketID(c)
		if !ok {
			return
		}
		var req AnalysisRequest
		// The body is optional; an empty one means "run OCR"
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
		result, err := svc.AnalyzeTicket(c.Request.Context(), id, req.Text)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
