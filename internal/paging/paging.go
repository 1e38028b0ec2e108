// Package paging turns the library API's inconsistent list responses into
// one canonical paged shape, and builds the matching request parameters.
package paging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Defaults applied to non-positive page and page-size requests.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// ErrUnrecognizedShape is returned for payloads that are neither a JSON
// array nor a JSON object.
var ErrUnrecognizedShape = errors.New("paging: unrecognized list response shape")

// Meta is the pagination block of a Result.
type Meta struct {
	Total    int `json:"total" yaml:"total"`
	Page     int `json:"page" yaml:"page"`
	PageSize int `json:"pageSize" yaml:"page_size"`
}

// Result is one page of items. Each call to Normalize builds a new Result.
type Result[T any] struct {
	Items []T `json:"items" yaml:"items"`
	Meta  Meta `json:"meta" yaml:"meta"`
}

// TotalPages returns the number of pages, at least 1.
func (r Result[T]) TotalPages() int {
	if r.Meta.PageSize <= 0 || r.Meta.Total <= 0 {
		return 1
	}
	return (r.Meta.Total + r.Meta.PageSize - 1) / r.Meta.PageSize
}

// HasNext reports whether a page follows this one.
func (r Result[T]) HasNext() bool {
	return r.Meta.Page < r.TotalPages()
}

// HasPrev reports whether a page precedes this one.
func (r Result[T]) HasPrev() bool {
	return r.Meta.Page > 1
}

// Clamp replaces non-positive page and pageSize with the defaults.
func Clamp(page, pageSize int) (int, int) {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

// Query is the list request of a search screen.
type Query struct {
	Search   string
	Page     int
	PageSize int
}

// Values returns the request parameters. The trimmed search term is sent as
// both "search" and "q" and omitted entirely when empty. page and limit are
// always sent.
func (q Query) Values() url.Values {
	page, size := Clamp(q.Page, q.PageSize)
	v := url.Values{}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
		v.Set("q", s)
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(size))
	return v
}

// Normalize parses raw into a Result for the requested page and pageSize.
// It is pure: the same input always yields an equal Result.
func Normalize[T any](raw []byte, page, pageSize int) (Result[T], error) {
	page, pageSize = Clamp(page, pageSize)
	trimmed := bytes.TrimSpace(raw)

	for _, rule := range shapeRules {
		if !rule.match(trimmed) {
			continue
		}
		switch rule.shape {
		case shapeArray:
			return normalizeArray[T](trimmed, page, pageSize)
		case shapeEnvelope:
			return normalizeEnvelope[T](trimmed, page, pageSize)
		}
	}
	return Result[T]{}, ErrUnrecognizedShape
}

func normalizeArray[T any](raw []byte, page, pageSize int) (Result[T], error) {
	var all []T
	if err := json.Unmarshal(raw, &all); err != nil {
		return Result[T]{}, fmt.Errorf("decode list: %w", err)
	}
	start, end := window(len(all), page, pageSize)
	items := make([]T, end-start)
	copy(items, all[start:end])
	return Result[T]{
		Items: items,
		Meta:  Meta{Total: len(all), Page: page, PageSize: pageSize},
	}, nil
}

// window returns the [start, end) bounds of page within n items. page and
// pageSize are positive; the arithmetic cannot overflow for any of them.
func window(n, page, pageSize int) (int, int) {
	start := n
	if page-1 <= n/pageSize {
		start = min((page-1)*pageSize, n)
	}
	end := n
	if pageSize < n-start {
		end = start + pageSize
	}
	return start, end
}

func normalizeEnvelope[T any](raw []byte, page, pageSize int) (Result[T], error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result[T]{}, fmt.Errorf("decode envelope: %w", err)
	}

	var items []T
	for _, rule := range itemRules {
		field, ok := env[rule]
		if !ok || !isArray(field) {
			continue
		}
		if err := json.Unmarshal(field, &items); err != nil {
			return Result[T]{}, fmt.Errorf("decode %s: %w", rule, err)
		}
		break
	}
	if items == nil {
		items = []T{}
	}

	var meta map[string]json.RawMessage
	for _, rule := range metaRules {
		if m, ok := rule(env); ok {
			meta = m
			break
		}
	}

	return Result[T]{
		Items: items,
		Meta: Meta{
			Total:    firstNumber(meta, len(items), "total"),
			Page:     firstNumber(meta, page, "page"),
			PageSize: firstNumber(meta, pageSize, "pageSize", "limit"),
		},
	}, nil
}
