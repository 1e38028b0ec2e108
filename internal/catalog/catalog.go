// Package catalog exposes the library API resources (books, copies,
// reservations, loans, users) to the front ends.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/cache"
	"github.com/me/folio/internal/logging"
	"github.com/me/folio/internal/paging"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/pkg/model"
)

// API is the subset of the HTTP client the catalog needs.
type API interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error
	Tokens() *tokenstore.Store
}

// Service reads and mutates library resources. List reads are cached per
// token; every mutation invalidates the resources it touches.
type Service struct {
	api    API
	cache  cache.Cache
	keys   cache.Keyer
	logger *slog.Logger
}

// New returns a Service. A nil cache disables caching.
func New(api API, c cache.Cache, keys cache.Keyer, logger *slog.Logger) *Service {
	return &Service{
		api:    api,
		cache:  c,
		keys:   keys,
		logger: logging.Component(logger, "catalog"),
	}
}

// fetch GETs path, serving from and filling the cache.
func (s *Service) fetch(ctx context.Context, path string, query url.Values, ttl time.Duration) ([]byte, error) {
	if s.cache == nil {
		var raw json.RawMessage
		err := s.api.Do(ctx, http.MethodGet, path, query, nil, &raw)
		return raw, err
	}

	token, _ := s.api.Tokens().Get()
	key := s.keys.Key(token, path, query)
	if b, ok := s.cache.Get(ctx, key); ok {
		s.logger.Debug("cache hit", "path", path)
		return b, nil
	}

	var raw json.RawMessage
	if err := s.api.Do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, raw, ttl)
	return raw, nil
}

// mutate sends a write and invalidates the cached pages of resources.
func (s *Service) mutate(ctx context.Context, method, path string, body, out any, resources ...string) error {
	if err := s.api.Do(ctx, method, path, nil, body, out); err != nil {
		return err
	}
	s.invalidate(ctx, resources...)
	return nil
}

func (s *Service) invalidate(ctx context.Context, resources ...string) {
	if s.cache == nil {
		return
	}
	for _, r := range resources {
		s.cache.Invalidate(ctx, s.keys.Resource(r))
	}
}

func list[T any](ctx context.Context, s *Service, path string, q paging.Query, ttl time.Duration) (paging.Result[T], error) {
	values := q.Values()
	raw, err := s.fetch(ctx, path, values, ttl)
	if err != nil {
		return paging.Result[T]{}, err
	}
	page, size := paging.Clamp(q.Page, q.PageSize)
	res, err := paging.Normalize[T](raw, page, size)
	if err != nil {
		return paging.Result[T]{}, fmt.Errorf("list %s: %w", path, err)
	}
	return res, nil
}

func get[T any](ctx context.Context, s *Service, path string, ttl time.Duration) (*T, error) {
	raw, err := s.fetch(ctx, path, nil, ttl)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &v, nil
}

func escape(id string) string {
	return url.PathEscape(id)
}

// isMissingRoute reports whether err means the backend lacks the route,
// as opposed to rejecting the request.
func isMissingRoute(err error) bool {
	switch apiclient.StatusOf(err) {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return true
	}
	return false
}

// Users

// ListUsers returns a page of users. Staff only on the backend.
func (s *Service) ListUsers(ctx context.Context, q paging.Query) (paging.Result[model.UserProfile], error) {
	return list[model.UserProfile](ctx, s, "/users", q, cache.StaffTTL)
}
