// Package server assembles the folio web front end: global middleware,
// health and metrics endpoints, and the UI routes.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/cache"
	"github.com/me/folio/internal/config"
	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/internal/ui"
)

// Version is reported by /healthz.
var Version = "0.1.0"

// Server is the folio web server.
type Server struct {
	router     chi.Router
	logger     *slog.Logger
	config     config.WebConfig
	startTime  time.Time
	registry   *prometheus.Registry
	cache      cache.Cache
	cacheKind  string
	httpClient *http.Client
	api        *apiclient.Client
	ui         *ui.UI
	metrics    *httpMetrics
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithCache sets the response cache. The default is an in-process cache.
func WithCache(c cache.Cache, kind string) Option {
	return func(s *Server) {
		s.cache = c
		s.cacheKind = kind
	}
}

// WithRegistry sets the Prometheus registry /metrics serves.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithHTTPClient sets the client used to reach the library API.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Server) {
		s.httpClient = hc
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.WebConfig, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logging.Component(logger, "server"),
		config:    cfg,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if s.cache == nil {
		s.cache, s.cacheKind = cache.NewMemory(), "memory"
	}
	s.metrics = newHTTPMetrics(s.registry)

	apiOpts := []apiclient.Option{
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(apiclient.NewMetrics(s.registry)),
		apiclient.WithRequestID(RequestIDFromContext),
	}
	if s.httpClient != nil {
		apiOpts = append(apiOpts, apiclient.WithHTTPClient(s.httpClient))
	}
	// The base client has no token storage; each request derives its own.
	s.api = apiclient.New(cfg.APIURL, tokenstore.New(nil, logger), apiOpts...)

	s.ui = ui.New(ui.Config{
		CookieName: cfg.CookieName,
		Secure:     cfg.CookieSecure,
	}, ui.Deps{
		API:    s.api,
		Cache:  s.cache,
		Keys:   cache.Keyer{Prefix: cfg.CachePrefix},
		Logger: logger,
	})

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(s.metrics.middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	// UI routes (HTML)
	s.ui.RegisterRoutes(r)
}
