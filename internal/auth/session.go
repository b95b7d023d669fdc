// Package auth keeps admin sessions and login lockouts in redis. A session
// lives for a sliding window that every authenticated request extends; the
// token handed to the client only names the session.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"receipt_desk/internal/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "auth:session:"

// ErrSessionNotFound is returned for unknown, expired or revoked sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is a signed-in admin
type Session struct {
	ID        string    `json:"id"`
	AdminID   uint      `json:"adminId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionStore keeps sessions as JSON values under auth:session:<id>
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewSessionStore returns a store whose sessions expire after ttl of inactivity.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// Create starts a session for the admin.
func (s *SessionStore) Create(ctx context.Context, adminID uint, username string) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		AdminID:   adminID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := utils.SetCache(ctx, s.rdb, sessionPrefix+sess.ID, sess, s.ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session without extending it.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	sess, found, err := utils.GetCache[Session](ctx, s.rdb, sessionPrefix+id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// Touch loads a session and restarts its inactivity window.
func (s *SessionStore) Touch(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = s.now().UTC().Add(s.ttl)
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	// XX: a session revoked between Get and here must stay revoked.
	ok, err := s.rdb.SetXX(ctx, sessionPrefix+id, b, s.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Revoke deletes the session. Unknown ids are not an error.
func (s *SessionStore) Revoke(ctx context.Context, id string) error {
	return utils.DeleteCache(ctx, s.rdb, sessionPrefix+id)
}
