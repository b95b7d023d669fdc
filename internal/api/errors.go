package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"receipt_desk/internal/service" // Ticket service errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// statusFor maps a service error kind to its HTTP status
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError // Database and storage failures
	}
}

// respondError writes {error, details?} for err
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	var serr *service.Error
	if kind == 0 || !errors.As(err, &serr) {
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(), // Route that failed
			"error": err.Error(),  // Error message
		}).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error", "details": err.Error()})
		return
	}
	body := gin.H{"error": serr.Message}
	if serr.Detail != "" {
		body["details"] = serr.Detail
	}
	c.JSON(statusFor(kind), body)
}
