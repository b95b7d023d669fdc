// Package storage holds the persistence side of the ticket desk: the tickets
// table and the receipts blob area. Two deployments share one implementation,
// an embedded one (sqlite file and a local directory) and a hosted one
// (MySQL or PostgreSQL and an S3 bucket).
package storage

import (
	"context"
	"errors"
	"time"

	"receipt_desk/internal/domain"
)

// ErrTicketNotFound is returned when no ticket row matches the id.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrBlobNotFound is returned when the blob store has no object under the name.
var ErrBlobNotFound = errors.New("blob not found")

// TicketFilter narrows ListTickets. Empty fields do not filter.
type TicketFilter struct {
	Status string // exact status, "" or "all" for any
	Search string // case-insensitive substring over name, IBAN and method
	UserID string // exact submitter id
}

// TicketUpdate carries the admin-mutable fields. Nil fields are left alone.
type TicketUpdate struct {
	Status    *domain.TicketStatus
	AdminNote *string
}

// Empty reports whether the update changes nothing.
func (u TicketUpdate) Empty() bool {
	return u.Status == nil && u.AdminNote == nil
}

// ComponentHealth describes one dependency in a health report.
type ComponentHealth struct {
	Kind  string `json:"kind"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Health is the backend part of the health check.
type Health struct {
	Backend  string          `json:"backend"`
	Database ComponentHealth `json:"database"`
	Storage  ComponentHealth `json:"storage"`
}

// OK reports whether both the database and the blob store are reachable.
func (h Health) OK() bool {
	return h.Database.OK && h.Storage.OK
}

// Backend is the full persistence capability set used by the ticket service.
type Backend interface {
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, id uint) (*domain.Ticket, error)
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error
	UpdateTicket(ctx context.Context, id uint, update TicketUpdate, at time.Time) (*domain.Ticket, error)
	DeleteTicket(ctx context.Context, id uint) error

	PutBlob(ctx context.Context, name, contentType string, data []byte) error
	GetBlob(ctx context.Context, name string) ([]byte, error)
	DeleteBlob(ctx context.Context, name string) error
	BlobURL(name string) string

	Health(ctx context.Context) Health
	Name() string
}
