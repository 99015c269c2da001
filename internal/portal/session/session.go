// Package session stores signed-in browser sessions: the Supabase tokens
// and identity behind the portal's session cookie.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Identity is the authenticated user as reported by the identity service.
type Identity struct {
	UserID   string                 `json:"user_id"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Session is one browser's authentication state.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"identity"`
	CreatedAt    time.Time `json:"created_at"`
}

// NeedsRefresh reports whether the access token expires within skew of now.
// Sessions without a known expiry never need a refresh.
func (s *Session) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}

// Clone returns a copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Identity.Metadata != nil {
		c.Identity.Metadata = make(map[string]interface{}, len(s.Identity.Metadata))
		for k, v := range s.Identity.Metadata {
			c.Identity.Metadata[k] = v
		}
	}
	return &c
}

// Store persists sessions by ID.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// NewID returns a random 256-bit session identifier.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
