package guard

import (
	"log/slog"
	"net/http"

	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/session"
)

// Options configures Middleware.
type Options struct {
	// Loading renders while the session is still initializing.
	Loading http.HandlerFunc
	// Unauthorized renders the body when access is denied. The status has
	// already been written when it runs.
	Unauthorized http.HandlerFunc
	Logger       *slog.Logger
}

// RetryAfterSeconds is sent with the loading placeholder.
const RetryAfterSeconds = "1"

func defaultLoading(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Loading...\n"))
}

func defaultUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Unauthorized\n"))
}

// httpNavigator replaces the current page with a 303 See Other.
type httpNavigator struct {
	w http.ResponseWriter
}

func (n httpNavigator) Replace(target string) {
	n.w.Header().Set("Location", target)
	n.w.WriteHeader(http.StatusSeeOther)
}

// Middleware guards next with p. The request context must carry a
// session (see session.NewContext); a missing session panics.
func Middleware(p Policy, opts Options) func(http.Handler) http.Handler {
	if opts.Loading == nil {
		opts.Loading = defaultLoading
	}
	if opts.Unauthorized == nil {
		opts.Unauthorized = defaultUnauthorized
	}
	logger := logging.Component(opts.Logger, "guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := session.MustFromContext(r.Context()).Snapshot()
			d := Decide(st, p, r.URL.RequestURI())

			if d.Kind == Loading {
				w.Header().Set("Retry-After", RetryAfterSeconds)
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusServiceUnavailable)
				opts.Loading(w, r)
				return
			}

			navigated := Enforce(d, httpNavigator{w: w})
			if !HaveAccess(st, p) {
				if !navigated {
					w.WriteHeader(http.StatusForbidden)
				}
				logger.Debug("access denied", "path", r.URL.Path, "decision", d.Kind.String(), "target", d.Target)
				opts.Unauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
