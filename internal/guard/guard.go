// Package guard decides whether a session may see a protected view. The
// decision is a pure function of session state and policy; navigating on
// that decision is a separate effect.
package guard

import (
	"net/url"
	"strings"

	"github.com/me/folio/internal/session"
)

const (
	// DefaultRedirect is where unauthenticated visitors are sent.
	DefaultRedirect = "/login"
	// ForbiddenPath is where authenticated visitors without a required role
	// are sent.
	ForbiddenPath = "/403"
	// RedirectParam carries the guarded path to the login page.
	RedirectParam = "redirect"
)

// Policy is the access requirement of a view. The zero value admits
// everyone; protected views should start from DefaultPolicy or Require
// rather than a literal that omits RequireAuth.
type Policy struct {
	RequireAuth bool
	Roles       []string // any one of these; empty means no role requirement
	RedirectTo  string   // login route; DefaultRedirect when empty
}

// DefaultPolicy is the policy of a view that declares nothing: authentication
// required, no role requirement, DefaultRedirect as the login route.
func DefaultPolicy() Policy {
	return Policy{RequireAuth: true, RedirectTo: DefaultRedirect}
}

// Require returns a policy requiring authentication and, when roles are
// given, one of those roles.
func Require(roles ...string) Policy {
	return Policy{RequireAuth: true, Roles: roles}
}

// Public returns a policy that admits everyone.
func Public() Policy {
	return Policy{}
}

func (p Policy) redirectTarget() string {
	if p.RedirectTo == "" {
		return DefaultRedirect
	}
	return p.RedirectTo
}

// Kind is the outcome of a guard decision.
type Kind int

const (
	Loading Kind = iota
	Redirect
	Forbidden
	Allow
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Forbidden:
		return "forbidden"
	case Allow:
		return "allow"
	}
	return "unknown"
}

// Decision is the result of Decide. Target is set for Redirect and Forbidden.
type Decision struct {
	Kind   Kind
	Target string
}

// Navigates reports whether the decision requires navigation.
func (d Decision) Navigates() bool {
	return d.Kind == Redirect || d.Kind == Forbidden
}

// Decide computes the guard decision for currentPath.
//
//   - initializing: Loading, no navigation
//   - auth required, no token: Redirect to <RedirectTo>?redirect=<currentPath>
//   - roles set, no matching role: Forbidden (ForbiddenPath)
//   - otherwise: Allow
func Decide(st session.State, p Policy, currentPath string) Decision {
	if st.Initializing {
		return Decision{Kind: Loading}
	}
	if p.RequireAuth && !st.IsAuthenticated() {
		return Decision{Kind: Redirect, Target: LoginURL(p.redirectTarget(), currentPath)}
	}
	if len(p.Roles) > 0 && !st.HasRole(p.Roles...) {
		return Decision{Kind: Forbidden, Target: ForbiddenPath}
	}
	return Decision{Kind: Allow}
}

// HaveAccess reports whether protected content may render. It is computed
// independently of Decide and gates rendering while navigation is pending.
func HaveAccess(st session.State, p Policy) bool {
	return (!p.RequireAuth || st.IsAuthenticated()) &&
		(len(p.Roles) == 0 || st.HasRole(p.Roles...))
}

// LoginURL returns target with currentPath attached as the redirect
// parameter.
func LoginURL(target, currentPath string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + RedirectParam + "=" + url.QueryEscape(currentPath)
}

// SafeRedirect returns raw when it is a same-origin absolute path, else
// fallback. It keeps the login page from bouncing users to other hosts.
func SafeRedirect(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return raw
}
