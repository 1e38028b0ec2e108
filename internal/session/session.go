// Package session holds the authentication state of one front-end context:
// the bearer token, the hydrated user profile and the startup flag. All
// mutations go through Session methods; readers take snapshots.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/pkg/model"
)

var (
	// ErrCredentialMissing is returned by Login when the response carries
	// no recognized token field.
	ErrCredentialMissing = errors.New("login response did not include an access token")

	// ErrAuthenticationRejected wraps the profile failure that follows an
	// accepted login.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrNoSession is the panic value of MustFromContext.
	ErrNoSession = errors.New("session: no session in context")
)

// Library API paths used by the session.
const (
	PathLogin          = "/auth/login"
	PathTwoFactorLogin = "/auth/2fa/login"
	PathRegister       = "/auth/register"
	PathProfile        = "/users/profile"
)

// API is the subset of the HTTP client the session needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	// OnEvict registers fn to run after the client cleared the stored token
	// in response to a 401.
	OnEvict(fn func()) (cancel func())
}

// LoginRequest holds login credentials. A non-empty TOTP selects the
// two-factor endpoint.
type LoginRequest struct {
	Email    string
	Password string
	TOTP     string
}

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Session is the authentication state machine.
type Session struct {
	tokens *tokenstore.Store
	api    API
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	started    bool
	closed     bool
	subs       map[int]func(State)
	nextSub    int

	stopEvict func()
}

// New returns a Session in the Uninitialized phase. Call Start to resolve it.
func New(tokens *tokenstore.Store, api API, logger *slog.Logger) *Session {
	s := &Session{
		tokens: tokens,
		api:    api,
		logger: logging.Component(logger, "session"),
		state:  State{Initializing: true},
		subs:   make(map[int]func(State)),
	}
	s.stopEvict = api.OnEvict(s.evicted)
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasRole reports whether the current user holds any of roles.
func (s *Session) HasRole(roles ...string) bool {
	return s.Snapshot().HasRole(roles...)
}

// Subscribe registers fn to receive the state after every mutation. The
// returned func unregisters it.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close ends the session's lifetime. Results of in-flight operations that
// arrive afterwards are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.subs = map[int]func(State){}
	s.mu.Unlock()

	s.stopEvict()
}

// update applies fn under the lock and notifies subscribers. It is a no-op
// when the session is closed or gen no longer matches (gen 0 skips the check).
func (s *Session) update(gen uint64, fn func(*State)) bool {
	s.mu.Lock()
	if s.closed || (gen != 0 && gen != s.generation) {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	st := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(st)
	}
	return true
}

// supersede bumps the generation so that an in-flight Start drops its
// result, and returns the new generation.
func (s *Session) supersede() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// Start resolves the startup phase once. Later calls return nil immediately.
//
// Without durable storage, or without a stored token, the session settles
// to NoSession with no network call. With a stored token it fetches the
// profile: success settles Active; failure evicts the token and settles
// NoSession. Initializing ends false on every path, including a panicking
// profile call. If ctx ends first the stored token is kept and ctx.Err()
// is returned.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	defer s.update(gen, func(st *State) { st.Initializing = false })

	if !s.tokens.Available() {
		s.logger.Debug("no durable storage, skipping hydration")
		return nil
	}
	token, ok := s.tokens.Get()
	if !ok {
		s.logger.Debug("no stored token")
		return nil
	}

	if !s.update(gen, func(st *State) { st.Token = token }) {
		return nil
	}
	s.logger.Debug("hydrating session", "phase", Authenticating)

	user, err := s.fetchProfileSafe(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Debug("hydration cancelled", "error", ctxErr)
			return ctxErr
		}
		s.logger.Info("stored token rejected, clearing session", "error", err)
		s.mu.Lock()
		current := !s.closed && gen == s.generation
		s.mu.Unlock()
		if current {
			s.tokens.Clear()
		}
		s.update(gen, func(st *State) {
			st.Token = ""
			st.User = nil
		})
		return nil
	}

	s.update(gen, func(st *State) { st.User = user })
	s.logger.Debug("session active", "user_id", user.ID)
	return nil
}

func (s *Session) fetchProfileSafe(ctx context.Context) (user *model.UserProfile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("profile fetch panicked: %v", r)
		}
	}()
	return s.fetchProfile(ctx)
}

func (s *Session) fetchProfile(ctx context.Context) (*model.UserProfile, error) {
	var user model.UserProfile
	if err := s.api.Get(ctx, PathProfile, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates with the backend, persists the issued token and then
// hydrates the profile. If the profile fetch fails the token stays
// persisted and the returned error wraps ErrAuthenticationRejected.
func (s *Session) Login(ctx context.Context, req LoginRequest) error {
	path := PathLogin
	body := map[string]string{"email": req.Email, "password": req.Password}
	if req.TOTP != "" {
		path = PathTwoFactorLogin
		body["code"] = req.TOTP
	}

	var resp map[string]json.RawMessage
	if err := s.api.Post(ctx, path, body, &resp); err != nil {
		return err
	}
	token := tokenField(resp, "access_token")
	if token == "" {
		token = tokenField(resp, "accessToken")
	}
	if token == "" {
		return ErrCredentialMissing
	}

	gen := s.supersede()
	s.tokens.Set(token)
	s.update(gen, func(st *State) {
		st.Token = token
		st.Initializing = false
	})

	user, err := s.fetchProfile(ctx)
	if err != nil {
		s.logger.Warn("profile fetch after login failed", "error", err)
		return fmt.Errorf("%w: %w", ErrAuthenticationRejected, err)
	}
	s.update(gen, func(st *State) {
		if st.Token != "" {
			st.User = user
		}
	})
	s.logger.Info("logged in", "user_id", user.ID, "two_factor", req.TOTP != "")
	return nil
}

func tokenField(resp map[string]json.RawMessage, name string) string {
	raw, ok := resp[name]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

// Register creates an account. It does not log in.
func (s *Session) Register(ctx context.Context, req RegisterRequest) error {
	return s.api.Post(ctx, PathRegister, req, nil)
}

// Logout clears the persisted token and the in-memory token and user. It
// makes no network call and is idempotent.
func (s *Session) Logout() {
	gen := s.supersede()
	s.tokens.Clear()
	s.update(gen, func(st *State) {
		st.Token = ""
		st.User = nil
		st.Initializing = false
	})
}

// RefreshProfile re-fetches the profile and replaces the user on success.
// On failure the error is returned and the token is left to the client's
// own 401 handling.
func (s *Session) RefreshProfile(ctx context.Context) error {
	user, err := s.fetchProfile(ctx)
	if err != nil {
		return err
	}
	s.update(0, func(st *State) {
		if st.Token != "" {
			st.User = user
		}
	})
	return nil
}

// evicted runs when the client cleared the stored token after a 401.
func (s *Session) evicted() {
	s.update(0, func(st *State) {
		st.Token = ""
		st.User = nil
	})
	s.logger.Debug("token evicted by client")
}
