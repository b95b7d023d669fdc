package service

import (
	"context"
	"errors"
	"strings"

	"receipt_desk/internal/analyzer"
	"receipt_desk/internal/storage"

	"github.com/sirupsen/logrus"
)

// AnalysisResult is the advisory review aid for one ticket
type AnalysisResult struct {
	TicketID   uint                `json:"ticketId"`
	Text       string              `json:"text"`
	Source     string              `json:"source"` // "ocr" or "provided"
	Fields     analyzer.Fields     `json:"fields"`
	Report     analyzer.Report     `json:"report"`
	Comparison analyzer.Comparison `json:"comparison"`
	Advisory   bool                `json:"advisory"`
}

// AnalyzeTicket scores the receipt text and compares it with the ticket.
// When text is empty the receipt is transcribed with the configured
// extractor. Nothing about the ticket changes.
func (s *TicketService) AnalyzeTicket(ctx context.Context, id uint, text string) (*AnalysisResult, error) {
	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	source := "provided"
	text = strings.TrimSpace(text)
	if text == "" {
		source = "ocr"
		if s.extractor == nil {
			return nil, unavailable("OCR is not configured")
		}
		if !strings.HasPrefix(ticket.ReceiptMimeType, "image/") {
			return nil, validation("OCR is only available for image receipts")
		}
		data, err := s.backend.GetBlob(ctx, ticket.ReceiptFileName)
		if err != nil {
			if errors.Is(err, storage.ErrBlobNotFound) {
				return nil, notFound("Receipt file not found")
			}
			return nil, storageError("Failed to read receipt", err)
		}
		text, err = s.extractor.ExtractText(ctx, data, ticket.ReceiptMimeType)
		if err != nil {
			logrus.WithFields(logrus.Fields{"ticket_id": id, "error": err.Error()}).Error("Receipt OCR failed")
			return nil, &Error{Kind: KindUnavailable, Message: "OCR failed", Detail: err.Error(), Err: err}
		}
	}

	fields := analyzer.Extract(text)
	result := &AnalysisResult{
		TicketID:   ticket.ID,
		Text:       text,
		Source:     source,
		Fields:     fields,
		Report:     analyzer.Score(text),
		Comparison: analyzer.Compare(fields, ticket, s.loc),
		Advisory:   true,
	}
	logrus.WithFields(logrus.Fields{
		"ticket_id":         ticket.ID,
		"source":            source,
		"consistency_score": result.Report.ConsistencyScore,
		"matched_fields":    result.Comparison.MatchedFields,
	}).Info("Ticket analyzed")
	return result, nil
}

// ExtractorEnabled reports whether receipts can be transcribed.
func (s *TicketService) ExtractorEnabled() bool { return s.extractor != nil }
