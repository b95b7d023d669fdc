// Package service implements the ticket lifecycle on top of a storage
// backend: validation of submissions, the two-phase create with its
// compensating blob delete, admin updates and deletes, the list cache and
// lifecycle events.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"receipt_desk/internal/analyzer"
	"receipt_desk/internal/domain"
	"receipt_desk/internal/events"
	"receipt_desk/internal/storage"
	"receipt_desk/internal/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	listCachePrefix = "tickets:"
	// listCacheGeneration is bumped on every mutation. It sits outside
	// listCachePrefix so prefix invalidation leaves it alone.
	listCacheGeneration = "cache:tickets:generation"
)

// allowedDeclaredTypes is the content-type allow-list for uploads
var allowedDeclaredTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// allowedSniffedTypes are the detected types a receipt may actually have
var allowedSniffedTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

// Accepted layouts for investmentDateTime. Layouts without a zone are read in
// the service location.
var (
	zonedLayouts    = []string{time.RFC3339}
	zonelessLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}
)

// Options wires a TicketService
type Options struct {
	Backend        storage.Backend
	Redis          *redis.Client          // List cache; nil disables caching
	Publisher      events.Publisher       // Nil means events.NoopPublisher
	Extractor      analyzer.TextExtractor // OCR; nil disables text extraction
	Location       *time.Location         // Zone for zone-less timestamps
	MaxUploadBytes int64                  // Receipt size cap
	CacheTTL       time.Duration          // List cache TTL
	Now            func() time.Time       // Clock, time.Now when nil
}

// TicketService owns every ticket operation exposed by the API
type TicketService struct {
	backend        storage.Backend
	rdb            *redis.Client
	publisher      events.Publisher
	extractor      analyzer.TextExtractor
	loc            *time.Location
	maxUploadBytes int64
	cacheTTL       time.Duration
	now            func() time.Time
}

// NewTicketService applies defaults to opts and returns the service.
func NewTicketService(opts Options) *TicketService {
	s := &TicketService{
		backend:        opts.Backend,
		rdb:            opts.Redis,
		publisher:      opts.Publisher,
		extractor:      opts.Extractor,
		loc:            opts.Location,
		maxUploadBytes: opts.MaxUploadBytes,
		cacheTTL:       opts.CacheTTL,
		now:            opts.Now,
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 5 * 1024 * 1024
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// MaxUploadBytes is the receipt size cap.
func (s *TicketService) MaxUploadBytes() int64 { return s.maxUploadBytes }

// ListTickets returns tickets newest first. Results are cached per filter
// until the next mutation.
func (s *TicketService) ListTickets(ctx context.Context, filter storage.TicketFilter) ([]domain.Ticket, error) {
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	filter.Search = strings.TrimSpace(filter.Search)
	filter.UserID = strings.TrimSpace(filter.UserID)
	if filter.Status != "" && filter.Status != "all" && !domain.TicketStatus(filter.Status).Valid() {
		return nil, validationf("Invalid status filter", "status must be one of all, pending, approved, rejected")
	}

	key := listCacheKey(filter)
	cacheable := s.cacheEnabled()
	var gen int64
	if cacheable {
		cached, found, err := utils.GetCache[[]domain.Ticket](ctx, s.rdb, key)
		if err != nil {
			logrus.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Ticket list cache read failed")
		} else if found && cached != nil {
			return s.withURLs(cached), nil
		}
		// Read before the query so a mutation that lands during it is detected.
		if gen, err = utils.CacheGeneration(ctx, s.rdb, listCacheGeneration); err != nil {
			cacheable = false
		}
	}

	tickets, err := s.backend.ListTickets(ctx, filter)
	if err != nil {
		logrus.WithFields(logrus.Fields{"status": filter.Status, "error": err.Error()}).Error("Failed to list tickets")
		return nil, databaseError(err)
	}
	if cacheable {
		stored, err := utils.SetCacheIfGeneration(ctx, s.rdb, listCacheGeneration, gen, key, tickets, s.cacheTTL)
		if err != nil {
			logrus.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Ticket list cache write failed")
		} else if !stored {
			logrus.WithFields(logrus.Fields{"key": key}).Debug("Ticket list changed during read, not cached")
		}
	}
	return s.withURLs(tickets), nil
}

// GetTicketsByUser lists one submitter's tickets with the ListTickets ordering.
func (s *TicketService) GetTicketsByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validation("User ID is required")
	}
	return s.ListTickets(ctx, storage.TicketFilter{UserID: userID})
}

// GetTicket returns a KindNotFound error for unknown ids.
func (s *TicketService) GetTicket(ctx context.Context, id uint) (*domain.Ticket, error) {
	t, err := s.backend.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return nil, notFound("Ticket not found")
		}
		logrus.WithFields(logrus.Fields{"ticket_id": id, "error": err.Error()}).Error("Failed to load ticket")
		return nil, databaseError(err)
	}
	s.withURL(t)
	return t, nil
}

// Receipt is an uploaded receipt file
type Receipt struct {
	FileName    string // Name as uploaded
	ContentType string // Declared content type
	Data        []byte
}

// CreateTicketInput is a submission as received from the form. Values are
// raw strings and validated by CreateTicket.
type CreateTicketInput struct {
	UserID             string
	RecipientName      string
	RecipientIban      string
	InvestmentMethod   string
	InvestmentAmount   string
	InvestmentDateTime string
	Receipt            *Receipt
}

// CreateTicket validates the submission, stores the receipt and inserts the
// ticket as pending. The blob is removed again when the insert fails.
func (s *TicketService) CreateTicket(ctx context.Context, in CreateTicketInput) (*domain.Ticket, error) {
	if in.Receipt == nil {
		return nil, validation("Receipt file is required")
	}
	fields := []*string{&in.UserID, &in.RecipientName, &in.RecipientIban, &in.InvestmentMethod, &in.InvestmentAmount, &in.InvestmentDateTime}
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
		if *f == "" {
			return nil, validation("All fields are required")
		}
	}

	amount, err := parseAmount(in.InvestmentAmount)
	if err != nil {
		return nil, validationf("Investment amount must be a positive number", err.Error())
	}
	now := s.now()
	investedAt, err := s.parseDateTime(in.InvestmentDateTime)
	if err != nil {
		return nil, validationf("Invalid investment date", err.Error())
	}
	if investedAt.After(now) {
		return nil, validation("Investment date cannot be in the future")
	}

	size := int64(len(in.Receipt.Data))
	if size > s.maxUploadBytes {
		return nil, validation(fmt.Sprintf("File size exceeds %s limit", formatLimit(s.maxUploadBytes)))
	}
	detected, err := checkReceiptType(in.Receipt)
	if err != nil {
		return nil, err
	}

	originalName := cleanOriginalName(in.Receipt.FileName)
	blobName := s.blobName(now, originalName, detected)
	if err := s.backend.PutBlob(ctx, blobName, detected.String(), in.Receipt.Data); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": in.UserID,   // Submitter
			"blob":    blobName,    // Generated blob name
			"error":   err.Error(), // Error message
		}).Error("Failed to store receipt")
		return nil, storageError("Failed to upload receipt", err)
	}

	ticket := &domain.Ticket{
		UserID:              in.UserID,
		RecipientName:       in.RecipientName,
		RecipientIban:       in.RecipientIban,
		InvestmentMethod:    in.InvestmentMethod,
		InvestmentAmount:    amount,
		InvestmentDateTime:  investedAt.UTC(),
		ReceiptFileName:     blobName,
		ReceiptOriginalName: originalName,
		ReceiptMimeType:     detected.String(),
		ReceiptSize:         size,
		Status:              domain.StatusPending,
		AdminNote:           "",
		CreatedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}
	if err := s.backend.CreateTicket(ctx, ticket); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": in.UserID,
			"blob":    blobName,
			"error":   err.Error(),
		}).Error("Failed to insert ticket, removing receipt")
		if derr := s.backend.DeleteBlob(ctx, blobName); derr != nil {
			logrus.WithFields(logrus.Fields{"blob": blobName, "error": derr.Error()}).Warn("Failed to remove orphaned receipt")
		}
		return nil, databaseError(err)
	}

	logrus.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"user_id":   ticket.UserID,
		"amount":    ticket.InvestmentAmount,
		"mime":      ticket.ReceiptMimeType,
		"size":      ticket.ReceiptSize,
	}).Info("Ticket created")
	s.afterMutation(ctx, events.TicketCreated, ticket)
	s.withURL(ticket)
	return ticket, nil
}

// UpdateTicketInput carries the admin-editable fields. A nil or empty status
// and a nil note leave the respective field unchanged.
type UpdateTicketInput struct {
	Status    *string `json:"status"`
	AdminNote *string `json:"adminNote"`
}

// UpdateTicket sets the provided fields and bumps updatedAt. Concurrent
// updates are last-write-wins.
func (s *TicketService) UpdateTicket(ctx context.Context, id uint, in UpdateTicketInput) (*domain.Ticket, error) {
	var update storage.TicketUpdate
	if in.Status != nil {
		if raw := strings.ToLower(strings.TrimSpace(*in.Status)); raw != "" {
			status := domain.TicketStatus(raw)
			if !status.Valid() {
				return nil, validationf("Invalid status", "status must be one of pending, approved, rejected")
			}
			update.Status = &status
		}
	}
	if in.AdminNote != nil {
		note := *in.AdminNote
		update.AdminNote = &note
	}
	if update.Empty() {
		return nil, validation("No valid fields to update")
	}

	ticket, err := s.backend.UpdateTicket(ctx, id, update, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return nil, notFound("Ticket not found")
		}
		logrus.WithFields(logrus.Fields{"ticket_id": id, "error": err.Error()}).Error("Failed to update ticket")
		return nil, databaseError(err)
	}
	logrus.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"user_id":   ticket.UserID,
		"status":    ticket.Status,
	}).Info("Ticket updated")
	s.afterMutation(ctx, events.TicketUpdated, ticket)
	s.withURL(ticket)
	return ticket, nil
}

// DeleteTicket removes the receipt (best effort) and then the row.
func (s *TicketService) DeleteTicket(ctx context.Context, id uint) error {
	ticket, err := s.backend.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return notFound("Ticket not found")
		}
		return databaseError(err)
	}
	if err := s.backend.DeleteBlob(ctx, ticket.ReceiptFileName); err != nil {
		logrus.WithFields(logrus.Fields{
			"ticket_id": id,
			"blob":      ticket.ReceiptFileName,
			"error":     err.Error(),
		}).Warn("Failed to delete receipt")
	}
	if err := s.backend.DeleteTicket(ctx, id); err != nil {
		if errors.Is(err, storage.ErrTicketNotFound) {
			return notFound("Ticket not found")
		}
		logrus.WithFields(logrus.Fields{"ticket_id": id, "error": err.Error()}).Error("Failed to delete ticket")
		return databaseError(err)
	}
	logrus.WithFields(logrus.Fields{"ticket_id": id, "user_id": ticket.UserID}).Info("Ticket deleted")
	s.afterMutation(ctx, events.TicketDeleted, ticket)
	return nil
}

// afterMutation drops cached lists and publishes the event. Neither failure
// affects the caller.
func (s *TicketService) afterMutation(ctx context.Context, eventType string, t *domain.Ticket) {
	if s.rdb != nil {
		if err := utils.BumpCacheGeneration(ctx, s.rdb, listCacheGeneration); err != nil {
			logrus.WithFields(logrus.Fields{"error": err.Error()}).Warn("Failed to bump ticket cache generation")
		}
		if err := utils.DeleteCacheByPrefix(ctx, s.rdb, listCachePrefix); err != nil {
			logrus.WithFields(logrus.Fields{"error": err.Error()}).Warn("Failed to invalidate ticket cache")
		}
	}
	ev := events.NewTicketEvent(eventType, t, s.now())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"event":     eventType,
			"ticket_id": t.ID,
			"error":     err.Error(),
		}).Warn("Failed to publish ticket event")
	}
}

func (s *TicketService) cacheEnabled() bool {
	return s.rdb != nil && s.cacheTTL > 0
}

func (s *TicketService) withURL(t *domain.Ticket) {
	t.ReceiptURL = s.backend.BlobURL(t.ReceiptFileName)
}

func (s *TicketService) withURLs(tickets []domain.Ticket) []domain.Ticket {
	for i := range tickets {
		s.withURL(&tickets[i])
	}
	return tickets
}

func (s *TicketService) parseDateTime(v string) (time.Time, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date-time %q", v)
}

// blobName is receipt-<unix ms>-<8 random hex><ext>. Only the extension of
// the uploaded name is kept, and only when it is short and alphanumeric.
func (s *TicketService) blobName(now time.Time, originalName string, detected *mimetype.MIME) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if !safeExtension(ext) {
		ext = strings.TrimPrefix(detected.Extension(), ".")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("receipt-%d-%s.%s", now.UnixMilli(), suffix, ext)
}

func safeExtension(ext string) bool {
	if len(ext) == 0 || len(ext) > 8 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func cleanOriginalName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "receipt"
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}

// checkReceiptType requires both the declared and the detected content type
// to be allowed and returns the detected one.
func checkReceiptType(r *Receipt) (*mimetype.MIME, error) {
	invalid := validation("Invalid file type. Only JPG, PNG, WEBP, and PDF are allowed.")
	declared, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil || !allowedDeclaredTypes[strings.ToLower(declared)] {
		return nil, invalid
	}
	detected := mimetype.Detect(r.Data)
	for _, allowed := range allowedSniffedTypes {
		if detected.Is(allowed) {
			return detected, nil
		}
	}
	invalid.Detail = "detected content type " + detected.String()
	return nil, invalid
}

func parseAmount(v string) (float64, error) {
	v = strings.ReplaceAll(v, " ", "")
	if strings.Contains(v, ",") && !strings.Contains(v, ".") {
		v = strings.Replace(v, ",", ".", 1)
	}
	amount, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount %q", v)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("amount %q is not positive", v)
	}
	return amount, nil
}

func formatLimit(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return strconv.FormatInt(n/mb, 10) + "MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}

func listCacheKey(f storage.TicketFilter) string {
	status := f.Status
	if status == "" {
		status = "all"
	}
	return listCachePrefix + "list:" + status + ":" + url.QueryEscape(f.Search) + ":" + url.QueryEscape(f.UserID)
}
