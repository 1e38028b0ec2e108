package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/cache"
	"github.com/me/folio/internal/paging"
	"github.com/me/folio/internal/store"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/pkg/model"
)

type recorder struct {
	mu     sync.Mutex
	hits   map[string]int
	bodies map[string]map[string]string
}

func (r *recorder) record(key string, body map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[key]++
	if body != nil {
		r.bodies[key] = body
	}
}

func (r *recorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[key]
}

func (r *recorder) body(key string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[key]
}

// newFixture serves a small library API. routes maps "METHOD /path" to a
// status and body; unknown routes return 404.
func newFixture(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*recorder, *apiclient.Client) {
	t.Helper()
	rec := &recorder{hits: map[string]int{}, bodies: map[string]map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		var body map[string]string
		if r.Method != http.MethodGet && r.ContentLength > 0 {
			json.NewDecoder(r.Body).Decode(&body)
		}
		rec.record(key, body)
		if h, ok := routes[key]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"statusCode":404,"message":"Cannot ` + key + `"}`))
	}))
	t.Cleanup(srv.Close)

	ts := tokenstore.New(store.NewMemoryStore(), nil)
	ts.Set("tok-a")
	return rec, apiclient.New(srv.URL, ts)
}

func jsonBody(body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte(body)) }
}

func TestListBooks_NormalizesAndCaches(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/books": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "dune", r.URL.Query().Get("search"))
			assert.Equal(t, "dune", r.URL.Query().Get("q"))
			w.Write([]byte(`{"data":[{"id":"b1","title":"Dune"}],"total":11,"page":2,"limit":5}`))
		},
	})
	svc := New(api, cache.NewMemory(), cache.Keyer{Prefix: "t"}, nil)

	q := paging.Query{Search: " dune ", Page: 2, PageSize: 5}
	res, err := svc.ListBooks(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Dune", res.Items[0].Title)
	assert.Equal(t, paging.Meta{Total: 11, Page: 2, PageSize: 5}, res.Meta)

	_, err = svc.ListBooks(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count("GET /api/books"), "second read served from cache")
}

func TestCache_SeparatesTokens(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/loans/my": jsonBody(`[]`),
	})
	c := cache.NewMemory()
	keys := cache.Keyer{Prefix: "t"}

	New(api, c, keys, nil).MyLoans(context.Background(), paging.Query{})

	other := tokenstore.New(store.NewMemoryStore(), nil)
	other.Set("tok-b")
	New(api.WithTokens(other), c, keys, nil).MyLoans(context.Background(), paging.Query{})

	assert.Equal(t, 2, rec.count("GET /api/loans/my"))
}

func TestMutationInvalidates(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/reservations/my":          jsonBody(`[{"id":"r1","status":"pending"}]`),
		"PATCH /api/reservations/r1/cancel": jsonBody(`{}`),
	})
	svc := New(api, cache.NewMemory(), cache.Keyer{Prefix: "t"}, nil)
	ctx := context.Background()

	res, err := svc.MyReservations(ctx, paging.Query{})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, res.Items[0].Status)

	require.NoError(t, svc.CancelReservation(ctx, "r1"))
	svc.MyReservations(ctx, paging.Query{})
	assert.Equal(t, 2, rec.count("GET /api/reservations/my"))
}

func TestFailedMutationKeepsCache(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/loans": jsonBody(`[]`),
		"PATCH /api/loans/l1/return": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"statusCode":409,"message":"Loan already returned"}`))
		},
	})
	svc := New(api, cache.NewMemory(), cache.Keyer{}, nil)
	ctx := context.Background()

	svc.AllLoans(ctx, paging.Query{})
	err := svc.ReturnLoan(ctx, "l1")
	assert.Equal(t, "Loan already returned", apiclient.Message(err))
	svc.AllLoans(ctx, paging.Query{})
	assert.Equal(t, 1, rec.count("GET /api/loans"))
}

func TestAddCopy_NestedRoute(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /api/books/b1/copies": jsonBody(`{"id":"c9","code":"QA-1","status":"available"}`),
	})
	svc := New(api, nil, cache.Keyer{}, nil)

	c, err := svc.AddCopy(context.Background(), "b1", "QA-1", "")
	require.NoError(t, err)
	assert.Equal(t, "c9", c.ID)
	assert.Equal(t, map[string]string{"code": "QA-1", "status": "available"}, rec.body("POST /api/books/b1/copies"))
	assert.Equal(t, 0, rec.count("POST /api/copies"))
}

func TestAddCopy_FallsBackToFlatRoute(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /api/copies": jsonBody(`{"id":"c10","code":"QA-2","status":"available","bookId":"b1"}`),
	})
	svc := New(api, nil, cache.Keyer{}, nil)

	c, err := svc.AddCopy(context.Background(), "b1", "QA-2", "Shelf 4")
	require.NoError(t, err)
	assert.Equal(t, "b1", c.BookID)
	assert.Equal(t, 1, rec.count("POST /api/books/b1/copies"))
	assert.Equal(t, "b1", rec.body("POST /api/copies")["bookId"])
	assert.Equal(t, "Shelf 4", rec.body("POST /api/copies")["location"])
}

func TestAddCopy_RejectionIsNotRetried(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /api/books/b1/copies": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"statusCode":400,"message":"code must be unique"}`))
		},
	})
	_, err := New(api, nil, cache.Keyer{}, nil).AddCopy(context.Background(), "b1", "dup", "")
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusOf(err))
	assert.Equal(t, 0, rec.count("POST /api/copies"))
}

func TestDeleteCopy(t *testing.T) {
	t.Run("soft delete", func(t *testing.T) {
		rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
			"PATCH /api/copies/c1": jsonBody(`{}`),
		})
		require.NoError(t, New(api, nil, cache.Keyer{}, nil).DeleteCopy(context.Background(), "c1"))
		assert.Equal(t, "deleted", rec.body("PATCH /api/copies/c1")["status"])
		assert.Equal(t, 0, rec.count("DELETE /api/copies/c1"))
	})
	t.Run("hard delete fallback", func(t *testing.T) {
		rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
			"PATCH /api/copies/c1": func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusMethodNotAllowed)
			},
			"DELETE /api/copies/c1": func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
		})
		require.NoError(t, New(api, nil, cache.Keyer{}, nil).DeleteCopy(context.Background(), "c1"))
		assert.Equal(t, 1, rec.count("DELETE /api/copies/c1"))
	})
}

func TestUpdateCopy_UnknownStatus(t *testing.T) {
	rec, api := newFixture(t, nil)
	err := New(api, nil, cache.Keyer{}, nil).UpdateCopy(context.Background(), "c1", "shelved")
	assert.Error(t, err)
	assert.Equal(t, 0, rec.count("PATCH /api/copies/c1"))
}

func TestReserveAndBorrowSendCopyID(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /api/reservations": jsonBody(`{"id":"r1","status":"pending"}`),
		"POST /api/loans":        jsonBody(`{"id":"l1","status":"active"}`),
	})
	svc := New(api, nil, cache.Keyer{}, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, "c1", rec.body("POST /api/reservations")["copyId"])

	l, err := svc.Borrow(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, model.LoanActive, l.Status)
	assert.Equal(t, "c2", rec.body("POST /api/loans")["copyId"])
}

func TestGetBook_EscapesID(t *testing.T) {
	rec, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/books/a b": jsonBody(`{"id":"a b","title":"Spaced","copies":[{"id":"c1","status":"available"},{"id":"c2","status":"loaned"}]}`),
	})
	b, err := New(api, nil, cache.Keyer{}, nil).GetBook(context.Background(), "a b")
	require.NoError(t, err)
	assert.Len(t, b.AvailableCopies(), 1)
	assert.Equal(t, 1, rec.count("GET /api/books/a b"))
}

func TestListUsers_UnrecognizedShape(t *testing.T) {
	_, api := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/users": jsonBody(`"nope"`),
	})
	_, err := New(api, nil, cache.Keyer{}, nil).ListUsers(context.Background(), paging.Query{})
	assert.ErrorIs(t, err, paging.ErrUnrecognizedShape)
}
