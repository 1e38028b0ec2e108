package model

// PageMeta is the pagination block of a list envelope.
type PageMeta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ItemsEnvelope is the {items, meta} list shape.
type ItemsEnvelope[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"meta"`
}

// DataEnvelope is the {data, total, page, limit} list shape.
type DataEnvelope[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ListOptions configures list queries with pagination and filtering.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Page: 1, Limit: 10}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Page < 1 {
		o.Page = 1
	}
}

// Offset returns the index of the first item on the page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Window returns the [start, end) bounds of the page within n items. It
// does not overflow for large pages; call Clamp first.
func (o ListOptions) Window(n int) (int, int) {
	if o.Page < 1 || o.Limit < 1 {
		return 0, 0
	}
	start := n
	if o.Page-1 <= n/o.Limit {
		start = min(o.Offset(), n)
	}
	end := n
	if o.Limit < n-start {
		end = start + o.Limit
	}
	return start, end
}
