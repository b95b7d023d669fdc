// Package events publishes ticket lifecycle events for downstream consumers
// (notification workers, audit trails). Publishing is fire-and-forget from the
// API's point of view.
package events

import (
	"context"
	"time"

	"receipt_desk/internal/domain"
)

// Event types
const (
	TicketCreated = "ticket.created"
	TicketUpdated = "ticket.updated"
	TicketDeleted = "ticket.deleted"
)

// TicketEvent is the message body published for every ticket mutation
type TicketEvent struct {
	Type       string              `json:"type"`
	TicketID   uint                `json:"ticketId"`
	UserID     string              `json:"userId"`
	Status     domain.TicketStatus `json:"status"`
	AdminNote  string              `json:"adminNote"`
	OccurredAt time.Time           `json:"occurredAt"`
}

// NewTicketEvent builds an event of the given type from the ticket's current state.
func NewTicketEvent(eventType string, t *domain.Ticket, at time.Time) TicketEvent {
	return TicketEvent{
		Type:       eventType,
		TicketID:   t.ID,
		UserID:     t.UserID,
		Status:     t.Status,
		AdminNote:  t.AdminNote,
		OccurredAt: at.UTC(),
	}
}

// Publisher delivers ticket events
type Publisher interface {
	Publish(ctx context.Context, event TicketEvent) error
	Enabled() bool
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, TicketEvent) error { return nil }

func (NoopPublisher) Enabled() bool { return false }
