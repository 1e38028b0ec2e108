// Package ui serves the library web front end: server-rendered pages over
// the library API, with the access token kept in an HttpOnly cookie.
package ui

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/cache"
	"github.com/me/folio/internal/catalog"
	"github.com/me/folio/internal/guard"
	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/paging"
	"github.com/me/folio/internal/session"
	"github.com/me/folio/internal/tokenstore"
)

// Config holds UI configuration.
type Config struct {
	CookieName string
	Secure     bool // Use secure cookies (HTTPS)
}

// Deps are the shared collaborators of every request.
type Deps struct {
	// API is the base client. Each request derives its own over the
	// request's cookie.
	API    *apiclient.Client
	Cache  cache.Cache
	Keys   cache.Keyer
	Logger *slog.Logger
}

// UI handles the web user interface.
type UI struct {
	cfg    Config
	api    *apiclient.Client
	cache  cache.Cache
	keys   cache.Keyer
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new UI handler.
func New(cfg Config, deps Deps) *UI {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &UI{
		cfg:    cfg,
		api:    deps.API,
		cache:  deps.Cache,
		keys:   deps.Keys,
		logger: logging.Component(deps.Logger, "ui"),
		now:    time.Now,
	}
}

type apiKey struct{}

// SessionMiddleware resolves the caller's session from the token cookie
// and stores it in the request context. The session lives for the request.
func (ui *UI) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens := tokenstore.New(newCookieStore(w, r, ui.cfg.CookieName, ui.cfg.Secure), ui.logger)
		api := ui.api.WithTokens(tokens)
		sess := session.New(tokens, api, ui.logger)
		defer sess.Close()

		if err := sess.Start(r.Context()); err != nil {
			ui.logger.Debug("session start interrupted", "error", err)
		}

		ctx := session.NewContext(r.Context(), sess)
		ctx = context.WithValue(ctx, apiKey{}, api)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// guarded wraps handlers with p, rendering the forbidden page on denial.
func (ui *UI) guarded(p guard.Policy) func(http.Handler) http.Handler {
	return guard.Middleware(p, guard.Options{
		Loading: func(w http.ResponseWriter, r *http.Request) {
			ui.renderBody(w, "loading", map[string]any{"Title": "Loading - Folio"})
		},
		Unauthorized: func(w http.ResponseWriter, r *http.Request) {
			ui.renderBody(w, "forbidden", ui.page(r, "Access denied - Folio"))
		},
		Logger: ui.logger,
	})
}

func (ui *UI) session(r *http.Request) *session.Session {
	return session.MustFromContext(r.Context())
}

// catalog returns a catalog service bound to the request's token.
func (ui *UI) catalog(r *http.Request) *catalog.Service {
	api, ok := r.Context().Value(apiKey{}).(*apiclient.Client)
	if !ok {
		api = ui.api
	}
	return catalog.New(api, ui.cache, ui.keys, ui.logger)
}

// page returns the template data every page starts from.
func (ui *UI) page(r *http.Request, title string) map[string]any {
	data := map[string]any{
		"Title": title,
		"Flash": r.URL.Query().Get("flash"),
		"Error": r.URL.Query().Get("error"),
	}
	if sess, ok := session.FromContext(r.Context()); ok {
		st := sess.Snapshot()
		if st.IsAuthenticated() {
			data["Session"] = st
		}
	}
	return data
}

func (ui *UI) listQuery(r *http.Request) paging.Query {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("limit"))
	return paging.Query{Search: strings.TrimSpace(q.Get("search")), Page: page, PageSize: size}
}

func pagination[T any](res paging.Result[T], search string) map[string]any {
	return map[string]any{
		"Page":       res.Meta.Page,
		"PageSize":   res.Meta.PageSize,
		"Total":      res.Meta.Total,
		"TotalPages": res.TotalPages(),
		"HasPrev":    res.HasPrev(),
		"HasNext":    res.HasNext(),
		"PrevPage":   res.Meta.Page - 1,
		"NextPage":   res.Meta.Page + 1,
		"Search":     search,
	}
}

func (ui *UI) pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// back redirects to path with a flash or error message.
func back(w http.ResponseWriter, r *http.Request, path, key, msg string) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	http.Redirect(w, r, path+sep+key+"="+url.QueryEscape(msg), http.StatusSeeOther)
}

// failure maps an API error to the message shown to the user.
func failure(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "The library service is unavailable"
	}
	return err.Error()
}

func (ui *UI) render(w http.ResponseWriter, name string, data map[string]any) {
	ui.setHTML(w)
	w.WriteHeader(http.StatusOK)
	ui.renderBody(w, name, data)
}

// renderBody renders a template after the status has been written.
func (ui *UI) renderBody(w http.ResponseWriter, name string, data map[string]any) {
	var buf bytes.Buffer
	if err := renderTemplate(&buf, name, data); err != nil {
		ui.logger.Error("template render failed", "template", name, "error", err)
		buf.Reset()
		buf.WriteString("Internal Server Error\n")
	}
	buf.WriteTo(w)
}

func (ui *UI) setHTML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

func (ui *UI) renderError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := apiclient.StatusOf(err)
	switch {
	case status == http.StatusNotFound:
	case status >= 400 && status < 500:
		ui.logger.Info(message, "error", err)
	default:
		ui.logger.Error(message, "error", err)
		status = http.StatusBadGateway
	}
	data := ui.page(r, "Error - Folio")
	data["Message"] = message
	data["Detail"] = failure(err)
	ui.setHTML(w)
	w.WriteHeader(status)
	ui.renderBody(w, "error", data)
}
