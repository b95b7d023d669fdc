package service

import (
	"context"
	"time"

	"receipt_desk/internal/storage"
)

// HealthReport is the operational status returned by the health endpoint
type HealthReport struct {
	Status    string                  `json:"status"` // "ok" or "degraded"
	Backend   storage.Health          `json:"backend"`
	Cache     storage.ComponentHealth `json:"cache"`
	Events    bool                    `json:"eventsEnabled"`
	OCR       bool                    `json:"ocrEnabled"`
	CheckedAt time.Time               `json:"checkedAt"`
}

// OK reports whether every required dependency is reachable.
func (h HealthReport) OK() bool { return h.Status == "ok" }

// Health pings the backend and redis. Events and OCR are optional and only
// reported as configured or not.
func (s *TicketService) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	h := HealthReport{
		Backend:   s.backend.Health(ctx),
		Cache:     storage.ComponentHealth{Kind: "redis"},
		Events:    s.publisher.Enabled(),
		OCR:       s.ExtractorEnabled(),
		CheckedAt: s.now().UTC(),
	}
	if s.rdb == nil {
		h.Cache.Error = "not configured"
	} else if err := s.rdb.Ping(ctx).Err(); err != nil {
		h.Cache.Error = err.Error()
	} else {
		h.Cache.OK = true
	}

	h.Status = "ok"
	if !h.Backend.OK() || !h.Cache.OK {
		h.Status = "degraded"
	}
	return h
}
