package session

import (
	"strings"

	"github.com/me/folio/pkg/model"
)

// Phase is the state-machine position derived from a State.
type Phase string

const (
	// Uninitialized: startup has not resolved and no token is known yet.
	Uninitialized Phase = "Uninitialized"
	// NoSession: settled without a token. Also the phase after a stored
	// token failed hydration and was evicted.
	NoSession Phase = "NoSession"
	// Authenticating: a stored token is being verified by a profile fetch.
	Authenticating Phase = "Authenticating"
	// Active: settled with a token and a hydrated profile.
	Active Phase = "Active"
	// TokenOnly: settled with a token but no profile, e.g. after a login
	// whose profile fetch failed.
	TokenOnly Phase = "TokenOnly"
)

// State is an immutable snapshot of a Session.
type State struct {
	Token        string
	User         *model.UserProfile
	Initializing bool
}

// IsAuthenticated reports token presence. It does not mean the token is
// still valid; that is only learned when a request fails with 401.
func (s State) IsAuthenticated() bool {
	return s.Token != ""
}

// Phase derives the state-machine phase.
func (s State) Phase() Phase {
	switch {
	case s.Initializing && s.Token == "":
		return Uninitialized
	case s.Initializing:
		return Authenticating
	case s.Token == "":
		return NoSession
	case s.User == nil:
		return TokenOnly
	default:
		return Active
	}
}

// HasRole reports whether the user's role matches any of roles,
// case-insensitively. It is false when no user is hydrated or the user has
// no role.
func (s State) HasRole(roles ...string) bool {
	if s.User == nil || s.User.Role == "" {
		return false
	}
	role := strings.ToUpper(s.User.Role)
	for _, r := range roles {
		if strings.ToUpper(r) == role {
			return true
		}
	}
	return false
}
