package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"receipt_desk/internal/domain"

	"gorm.io/gorm"
)

// BlobStore is the receipts bucket. Names are generated by the service and
// never contain path separators.
type BlobStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	URL(name string) string
	Ping(ctx context.Context) error
	Kind() string
}

// Store implements Backend on a gorm database and a BlobStore.
type Store struct {
	name   string
	driver string
	db     *gorm.DB
	blobs  BlobStore
}

var _ Backend = (*Store)(nil)

// NewStore composes a backend. name is reported by health checks
// ("embedded" or "hosted").
func NewStore(name string, db *gorm.DB, blobs BlobStore) *Store {
	return &Store{name: name, driver: db.Dialector.Name(), db: db, blobs: blobs}
}

// Name returns the deployment name of the backend.
func (s *Store) Name() string { return s.name }

// ListTickets returns matching tickets newest first. The result is never nil.
func (s *Store) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query := s.db.WithContext(ctx).Model(&domain.Ticket{})
	if filter.Status != "" && filter.Status != "all" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Search != "" {
		term := "%" + escapeLike(domain.FoldSearch(filter.Search)) + "%"
		query = query.Where("search_text LIKE ? ESCAPE '!'", term)
	}
	tickets := make([]domain.Ticket, 0)
	if err := query.Order("created_at desc").Order("id desc").Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicket returns ErrTicketNotFound when the id does not exist.
func (s *Store) GetTicket(ctx context.Context, id uint) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := s.db.WithContext(ctx).First(&ticket, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// CreateTicket inserts the row and fills in the generated id and timestamps.
func (s *Store) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	ticket.FillSearchText()
	return s.db.WithContext(ctx).Create(ticket).Error
}

// UpdateTicket applies the non-nil fields and bumps updated_at to at.
// Concurrent updates are last-write-wins.
func (s *Store) UpdateTicket(ctx context.Context, id uint, update TicketUpdate, at time.Time) (*domain.Ticket, error) {
	if _, err := s.GetTicket(ctx, id); err != nil {
		return nil, err
	}
	changes := map[string]any{"updated_at": at}
	if update.Status != nil {
		changes["status"] = string(*update.Status)
	}
	if update.AdminNote != nil {
		changes["admin_note"] = *update.AdminNote
	}
	res := s.db.WithContext(ctx).Model(&domain.Ticket{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return nil, res.Error
	}
	return s.GetTicket(ctx, id)
}

// DeleteTicket removes the row. The blob is the caller's concern.
func (s *Store) DeleteTicket(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&domain.Ticket{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (s *Store) PutBlob(ctx context.Context, name, contentType string, data []byte) error {
	return s.blobs.Put(ctx, name, contentType, data)
}

func (s *Store) GetBlob(ctx context.Context, name string) ([]byte, error) {
	return s.blobs.Get(ctx, name)
}

func (s *Store) DeleteBlob(ctx context.Context, name string) error {
	return s.blobs.Delete(ctx, name)
}

func (s *Store) BlobURL(name string) string {
	return s.blobs.URL(name)
}

// Health pings the database and the blob store.
func (s *Store) Health(ctx context.Context) Health {
	h := Health{
		Backend:  s.name,
		Database: ComponentHealth{Kind: s.driver, OK: true},
		Storage:  ComponentHealth{Kind: s.blobs.Kind(), OK: true},
	}
	if sqlDB, err := s.db.DB(); err != nil {
		h.Database = ComponentHealth{Kind: s.driver, Error: err.Error()}
	} else if err := sqlDB.PingContext(ctx); err != nil {
		h.Database = ComponentHealth{Kind: s.driver, Error: err.Error()}
	}
	if err := s.blobs.Ping(ctx); err != nil {
		h.Storage = ComponentHealth{Kind: s.blobs.Kind(), Error: err.Error()}
	}
	return h
}

// escapeLike escapes LIKE wildcards with '!' so that the same query works on
// sqlite, MySQL and PostgreSQL.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
