// Package devapi is an in-memory library backend speaking the same REST
// dialect as the production service. The front ends are developed and
// tested against it.
package devapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/me/folio/internal/config"
	"github.com/me/folio/internal/logging"
	"github.com/me/folio/pkg/model"
)

// Server is the development backend.
type Server struct {
	echo   *echo.Echo
	cfg    config.DevAPIConfig
	lib    *library
	logger *slog.Logger
	legacy bool
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLegacyRoutes drops the nested POST /books/:id/copies route and the
// PATCH /copies/:id route, like older deployments of the service.
func WithLegacyRoutes() Option {
	return func(s *Server) { s.legacy = true }
}

// WithClock sets the time source used for tokens, due dates and fines.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New returns a Server seeded with demo accounts and books.
func New(cfg config.DevAPIConfig, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.Component(logger, "devapi"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	lib, err := seed(s.now, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("seed library: %w", err)
	}
	s.lib = lib

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(s.recoverer, s.requestLogger)
	s.echo = e
	s.routes()
	return s, nil
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on cfg.Addr until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("dev API listening", "addr", s.cfg.Addr)
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.echo.Close()
}

func (s *Server) routes() {
	user := s.jwtAuth()
	staff := requireRole(model.StaffRoles...)

	g := s.echo.Group("/api")

	g.POST("/auth/login", s.handleLogin)
	g.POST("/auth/2fa/login", s.handleTwoFactorLogin)
	g.POST("/auth/register", s.handleRegister)

	g.GET("/users/profile", s.handleProfile, user)
	g.GET("/users", s.handleListUsers, user, staff)

	g.GET("/books", s.handleListBooks)
	g.GET("/books/:id", s.handleGetBook)
	g.POST("/books", s.handleCreateBook, user, staff)
	g.PATCH("/books/:id", s.handleUpdateBook, user, staff)
	g.DELETE("/books/:id", s.handleDeleteBook, user, staff)

	g.GET("/copies", s.handleListCopies, user, staff)
	g.POST("/copies", s.handleCreateCopy, user, staff)
	g.DELETE("/copies/:id", s.handleDeleteCopy, user, staff)
	if !s.legacy {
		g.POST("/books/:id/copies", s.handleCreateCopy, user, staff)
		g.PATCH("/copies/:id", s.handleUpdateCopy, user, staff)
	}

	g.POST("/reservations", s.handleReserve, user)
	g.GET("/reservations/my", s.handleMyReservations, user)
	g.PATCH("/reservations/:id/cancel", s.handleCancelReservation, user)
	g.GET("/reservations/pending", s.handlePendingReservations, user, staff)
	g.GET("/reservations", s.handleAllReservations, user, staff)
	g.PATCH("/reservations/:id/fulfill", s.handleFulfillReservation, user, staff)

	g.POST("/loans", s.handleBorrow, user)
	g.GET("/loans/my", s.handleMyLoans, user)
	g.GET("/loans", s.handleAllLoans, user, staff)
	g.PATCH("/loans/:id/return", s.handleReturnLoan, user, staff)
}

// validationError carries several messages, sent as a list.
type validationError []string

func (v validationError) Error() string { return fmt.Sprint([]string(v)) }

// errorHandler renders every error in the service's
// {statusCode, message, error} shape.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msgs := []string{"Internal server error"}

	var he *echo.HTTPError
	var ve validationError
	switch {
	case errors.As(err, &ve):
		status, msgs = http.StatusBadRequest, ve
	case errors.As(err, &he):
		status = he.Code
		msgs = []string{fmt.Sprint(he.Message)}
	default:
		s.logger.Error("unhandled error", "path", c.Request().URL.Path, "error", err)
	}

	if err := c.JSON(status, model.NewErrorBody(status, msgs...)); err != nil {
		s.logger.Warn("write error response", "error", err)
	}
}

func (s *Server) recoverer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panicked", "path", c.Request().URL.Path, "panic", r)
				err = echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
			}
		}()
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		s.logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(start).String(),
			"request_id", req.Header.Get(echo.HeaderXRequestID),
		)
		return nil
	}
}
