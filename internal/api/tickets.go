package api

import (
	"errors"   // Error inspection
	"io"       // Reading uploaded files
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"receipt_desk/internal/service" // Ticket service
	"receipt_desk/internal/storage" // Ticket filters

	"github.com/gin-gonic/gin"         // Gin web framework
	"github.com/gin-gonic/gin/binding" // Multipart form binding
)

// multipartOverhead is allowed on top of the receipt size for the other form fields
const multipartOverhead = 1 << 20

// CreateTicketForm represents the multipart submission form
type CreateTicketForm struct {
	UserID             string `form:"userId"`             // Submitter identifier
	RecipientName      string `form:"recipientName"`      // Payee name
	RecipientIban      string `form:"recipientIban"`      // Payee IBAN
	InvestmentMethod   string `form:"investmentMethod"`   // Bank label
	InvestmentAmount   string `form:"investmentAmount"`   // Decimal amount
	InvestmentDateTime string `form:"investmentDateTime"` // Claimed transfer time
}

// ListTicketsHandler returns tickets filtered by status, search and userId
func ListTicketsHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := storage.TicketFilter{
			Status: c.Query("status"), // "all" or empty means every status
			Search: c.Query("search"), // Name, IBAN or method substring
			UserID: c.Query("userId"), // Exact submitter
		}
		tickets, err := svc.ListTickets(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tickets)
	}
}

// GetTicketHandler returns a single ticket by id
func GetTicketHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ticketID(c)
		if !ok {
			return
		}
		ticket, err := svc.GetTicket(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ticket)
	}
}

// GetUserTicketsHandler returns the tickets submitted by one user
func GetUserTicketsHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tickets, err := svc.GetTicketsByUser(c.Request.Context(), c.Param("userId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tickets)
	}
}

// CreateTicketHandler accepts a multipart submission with the receipt file
func CreateTicketHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		maxBytes := svc.MaxUploadBytes()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead) // Bound request memory
		var form CreateTicketForm
		if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "File size exceeds " + strconv.FormatInt(maxBytes>>20, 10) + "MB limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart request", "details": err.Error()})
			return
		}
		in := service.CreateTicketInput{
			UserID:             form.UserID,
			RecipientName:      form.RecipientName,
			RecipientIban:      form.RecipientIban,
			InvestmentMethod:   form.InvestmentMethod,
			InvestmentAmount:   form.InvestmentAmount,
			InvestmentDateTime: form.InvestmentDateTime,
		}
		fh, err := c.FormFile("receipt") // Uploaded receipt
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart request", "details": err.Error()})
			return
		}
		if fh != nil {
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read receipt", "details": err.Error()})
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, maxBytes+1)) // One byte over the cap is enough to reject
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read receipt", "details": err.Error()})
				return
			}
			in.Receipt = &service.Receipt{
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			}
		}
		ticket, err := svc.CreateTicket(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ticket)
	}
}

// UpdateTicketHandler sets the status and/or admin note of a ticket
func UpdateTicketHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ticketID(c)
		if !ok {
			return
		}
		var req service.UpdateTicketInput // {status?, adminNote?}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
		ticket, err := svc.UpdateTicket(c.Request.Context(), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ticket)
	}
}

// DeleteTicketHandler removes a ticket and its receipt
func DeleteTicketHandler(svc *service.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ticketID(c)
		if !ok {
			return
		}
		if err := svc.DeleteTicket(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Ticket deleted successfully"})
	}
}

// ticketID parses :id. Ids that cannot exist are reported as not found.
func ticketID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return 0, false
	}
	return uint(id), true
}
