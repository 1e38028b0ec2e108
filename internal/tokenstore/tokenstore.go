// Package tokenstore persists the bearer token under a single well-known key.
package tokenstore

import (
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/store"
)

// Key is the storage key the token lives under.
const Key = "token"

// Store reads and writes the bearer token. A Store over a nil store.Store
// models an execution context without durable storage: Get reports absent
// and Set/Clear do nothing. Storage failures are logged and treated as
// absent; Store methods never fail.
type Store struct {
	backend store.Store
	logger  *slog.Logger
}

// New returns a token Store over backend, which may be nil.
func New(backend store.Store, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logging.Component(logger, "tokenstore"),
	}
}

// Available reports whether durable storage exists in this context.
func (s *Store) Available() bool {
	return s != nil && s.backend != nil
}

// Get returns the stored token, or ok=false when none is stored.
func (s *Store) Get() (string, bool) {
	if !s.Available() {
		return "", false
	}
	v, ok, err := s.backend.GetItem(Key)
	if err != nil {
		s.logger.Warn("read token", "error", err)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set persists token, replacing any previous value.
func (s *Store) Set(token string) {
	if !s.Available() {
		return
	}
	if err := s.backend.SetItem(Key, token); err != nil {
		s.logger.Warn("write token", "error", err)
	}
}

// Clear removes the stored token. Clearing an absent token is a no-op.
func (s *Store) Clear() {
	if !s.Available() {
		return
	}
	if err := s.backend.RemoveItem(Key); err != nil {
		s.logger.Warn("remove token", "error", err)
	}
}

// Claims are the display-only fields read from a JWT access token.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token carried an exp claim earlier than now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Inspect decodes the token's claims without verifying the signature. It
// returns ok=false for opaque or malformed tokens. The result is for display
// and cookie expiry only; it never decides whether a session is authenticated.
func Inspect(token string) (Claims, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, false
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, false
	}

	var c Claims
	c.Subject, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if v, ok := mc["email"].(string); ok {
		c.Email = v
	}
	if v, ok := mc["role"].(string); ok {
		c.Role = v
	}
	return c, true
}
