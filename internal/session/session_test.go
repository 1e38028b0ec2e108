package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/store"
	"github.com/me/folio/internal/tokenstore"
	"github.com/me/folio/pkg/model"
)

// backend is a scripted library API.
type backend struct {
	mu       sync.Mutex
	calls    map[string]int
	bodies   map[string]map[string]string
	profile  *model.UserProfile
	status   int // profile status when profile is nil
	loginRes string
	srv      *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		calls:    map[string]int{},
		bodies:   map[string]map[string]string{},
		status:   http.StatusUnauthorized,
		loginRes: `{"access_token":"tok-1"}`,
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := r.Method + " " + r.URL.Path
	b.calls[key]++

	if r.Body != nil && r.Method == http.MethodPost {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		b.bodies[key] = body
	}

	switch key {
	case "POST /api/auth/login", "POST /api/auth/2fa/login":
		w.Write([]byte(b.loginRes))
	case "POST /api/auth/register":
		if b.bodies[key]["email"] == "taken@folio.test" {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"statusCode":409,"message":"Email already registered"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"u_new"}`))
	case "GET /api/users/profile":
		if b.profile == nil {
			w.WriteHeader(b.status)
			w.Write([]byte(`{"statusCode":401,"message":"Unauthorized"}`))
			return
		}
		json.NewEncoder(w).Encode(b.profile)
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *backend) body(key string) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[key]
}

func (b *backend) setStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func (b *backend) setLoginResponse(body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginRes = body
}

func (b *backend) setProfile(p *model.UserProfile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profile = p
}

func newSession(t *testing.T, b *backend, stored string) (*Session, *tokenstore.Store) {
	t.Helper()
	ts := tokenstore.New(store.NewMemoryStore(), nil)
	if stored != "" {
		ts.Set(stored)
	}
	s := New(ts, apiclient.New(b.srv.URL, ts), nil)
	t.Cleanup(s.Close)
	return s, ts
}

var reader = &model.UserProfile{ID: "u_1", Email: "reader@folio.test", Role: "member"}

func TestStart_NoStoredToken(t *testing.T) {
	b := newBackend(t)
	s, _ := newSession(t, b, "")

	assert.Equal(t, Uninitialized, s.Snapshot().Phase())
	require.NoError(t, s.Start(context.Background()))

	st := s.Snapshot()
	assert.False(t, st.Initializing)
	assert.False(t, st.IsAuthenticated())
	assert.Nil(t, st.User)
	assert.Equal(t, NoSession, st.Phase())
	assert.Equal(t, 0, b.count("GET /api/users/profile"))
}

func TestStart_NoDurableStorage(t *testing.T) {
	b := newBackend(t)
	ts := tokenstore.New(nil, nil)
	s := New(ts, apiclient.New(b.srv.URL, ts), nil)
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, State{}, s.Snapshot())
	assert.Equal(t, 0, b.count("GET /api/users/profile"))
}

func TestStart_StoredTokenHydrates(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, ts := newSession(t, b, "stored")

	require.NoError(t, s.Start(context.Background()))

	st := s.Snapshot()
	assert.False(t, st.Initializing)
	assert.True(t, st.IsAuthenticated())
	assert.Equal(t, "stored", st.Token)
	assert.Equal(t, reader, st.User)
	assert.Equal(t, Active, st.Phase())
	got, _ := ts.Get()
	assert.Equal(t, "stored", got)
}

func TestStart_StoredTokenRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			b := newBackend(t)
			b.setStatus(status)
			s, ts := newSession(t, b, "stale")

			require.NoError(t, s.Start(context.Background()))

			_, ok := ts.Get()
			assert.False(t, ok, "stored token must be evicted")

			fresh, _ := newSession(t, newBackend(t), "")
			fresh.Start(context.Background())
			assert.Equal(t, fresh.Snapshot(), s.Snapshot(), "invalidated state must equal the no-token state")
		})
	}
}

func TestStart_RunsOnce(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, _ := newSession(t, b, "stored")

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, b.count("GET /api/users/profile"))
}

func TestStart_CancelledKeepsToken(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, ts := newSession(t, b, "stored")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	st := s.Snapshot()
	assert.False(t, st.Initializing)
	assert.Equal(t, "stored", st.Token)
	_, ok := ts.Get()
	assert.True(t, ok)
}

// scriptedAPI lets a test control the profile call directly.
type scriptedAPI struct {
	get     func(ctx context.Context, out any) error
	evictFn func()
}

func (a *scriptedAPI) Get(ctx context.Context, path string, _ url.Values, out any) error {
	return a.get(ctx, out)
}

func (a *scriptedAPI) Post(context.Context, string, any, any) error { return nil }

func (a *scriptedAPI) OnEvict(fn func()) func() {
	a.evictFn = fn
	return func() {}
}

func TestStart_PanickingProfileCallSettles(t *testing.T) {
	ts := tokenstore.New(store.NewMemoryStore(), nil)
	ts.Set("stored")
	api := &scriptedAPI{get: func(context.Context, any) error { panic("transport exploded") }}
	s := New(ts, api, nil)
	defer s.Close()

	require.NotPanics(t, func() { s.Start(context.Background()) })
	st := s.Snapshot()
	assert.False(t, st.Initializing)
	assert.False(t, st.IsAuthenticated())
	_, ok := ts.Get()
	assert.False(t, ok)
}

func TestStart_ClosedSessionDropsLateResult(t *testing.T) {
	ts := tokenstore.New(store.NewMemoryStore(), nil)
	ts.Set("stored")
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &scriptedAPI{get: func(_ context.Context, out any) error {
		close(entered)
		<-release
		*(out.(*model.UserProfile)) = *reader
		return nil
	}}
	s := New(ts, api, nil)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	<-entered
	before := s.Snapshot()
	s.Close()
	close(release)
	<-done

	assert.Equal(t, before, s.Snapshot(), "a closed session must not be written to")
	assert.Nil(t, s.Snapshot().User)
}

func TestLogin_PlainEndpoint(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, ts := newSession(t, b, "")
	s.Start(context.Background())

	require.NoError(t, s.Login(context.Background(), LoginRequest{Email: "reader@folio.test", Password: "pw"}))

	assert.Equal(t, 1, b.count("POST /api/auth/login"))
	assert.Equal(t, 0, b.count("POST /api/auth/2fa/login"))
	assert.NotContains(t, b.body("POST /api/auth/login"), "code")

	st := s.Snapshot()
	assert.Equal(t, "tok-1", st.Token)
	assert.Equal(t, reader, st.User)
	got, _ := ts.Get()
	assert.Equal(t, "tok-1", got)
}

func TestLogin_TwoFactorEndpoint(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, _ := newSession(t, b, "")

	require.NoError(t, s.Login(context.Background(), LoginRequest{Email: "admin@folio.test", Password: "pw", TOTP: "123456"}))

	assert.Equal(t, 0, b.count("POST /api/auth/login"))
	assert.Equal(t, 1, b.count("POST /api/auth/2fa/login"))
	body := b.body("POST /api/auth/2fa/login")
	assert.Equal(t, "123456", body["code"])
	assert.Equal(t, "admin@folio.test", body["email"])
	assert.NotContains(t, body, "totp")
}

func TestLogin_TokenFieldVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"snake case", `{"access_token":"a1"}`, "a1"},
		{"camel case", `{"accessToken":"a2"}`, "a2"},
		{"snake wins", `{"access_token":"a3","accessToken":"other"}`, "a3"},
		{"empty snake falls through", `{"access_token":"","accessToken":"a4"}`, "a4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			b.setProfile(reader)
			b.setLoginResponse(tt.body)
			s, _ := newSession(t, b, "")

			require.NoError(t, s.Login(context.Background(), LoginRequest{Email: "e", Password: "p"}))
			assert.Equal(t, tt.want, s.Snapshot().Token)
		})
	}
}

func TestLogin_CredentialMissing(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	b.setLoginResponse(`{"token":"wrong-field"}`)
	s, ts := newSession(t, b, "")
	s.Start(context.Background())
	before := s.Snapshot()

	err := s.Login(context.Background(), LoginRequest{Email: "e", Password: "p"})
	assert.ErrorIs(t, err, ErrCredentialMissing)
	assert.Equal(t, before, s.Snapshot())
	_, ok := ts.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, b.count("GET /api/users/profile"))
}

func TestLogin_ProfileFailureKeepsToken(t *testing.T) {
	b := newBackend(t)
	b.setStatus(http.StatusInternalServerError)
	s, ts := newSession(t, b, "")
	s.Start(context.Background())

	err := s.Login(context.Background(), LoginRequest{Email: "e", Password: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationRejected)
	var apiErr *apiclient.APIError
	assert.True(t, errors.As(err, &apiErr))

	st := s.Snapshot()
	assert.True(t, st.IsAuthenticated())
	assert.Nil(t, st.User)
	assert.Equal(t, TokenOnly, st.Phase())
	got, _ := ts.Get()
	assert.Equal(t, "tok-1", got)
}

func TestLogin_TokenVisibleBeforeUser(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, _ := newSession(t, b, "")
	s.Start(context.Background())

	var mu sync.Mutex
	var seen []State
	s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	require.NoError(t, s.Login(context.Background(), LoginRequest{Email: "e", Password: "p"}))

	require.Len(t, seen, 2)
	assert.Equal(t, "tok-1", seen[0].Token)
	assert.Nil(t, seen[0].User)
	assert.Equal(t, reader, seen[1].User)
	for _, st := range seen {
		assert.False(t, st.User != nil && st.Token == "", "user present without token")
	}
}

func TestLogin_BackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"statusCode":400,"message":["password should not be empty"]}`))
	}))
	defer srv.Close()
	ts := tokenstore.New(store.NewMemoryStore(), nil)
	s := New(ts, apiclient.New(srv.URL, ts), nil)
	defer s.Close()

	err := s.Login(context.Background(), LoginRequest{Email: "e"})
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusOf(err))
	assert.Equal(t, "password should not be empty", apiclient.Message(err))
	assert.False(t, s.Snapshot().IsAuthenticated())
}

func TestRegister_PassesThrough(t *testing.T) {
	b := newBackend(t)
	s, _ := newSession(t, b, "")
	s.Start(context.Background())
	before := s.Snapshot()

	require.NoError(t, s.Register(context.Background(), RegisterRequest{Email: "new@folio.test", Password: "pw", FirstName: "Nia"}))
	assert.Equal(t, "Nia", b.body("POST /api/auth/register")["firstName"])
	assert.NotContains(t, b.body("POST /api/auth/register"), "lastName")
	assert.Equal(t, before, s.Snapshot())

	err := s.Register(context.Background(), RegisterRequest{Email: "taken@folio.test", Password: "pw"})
	assert.Equal(t, http.StatusConflict, apiclient.StatusOf(err))
	assert.Equal(t, before, s.Snapshot())
}

func TestLogout(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, ts := newSession(t, b, "stored")
	s.Start(context.Background())
	calls := b.count("GET /api/users/profile")

	s.Logout()
	st := s.Snapshot()
	assert.Equal(t, "", st.Token)
	assert.Nil(t, st.User)
	assert.False(t, st.IsAuthenticated())
	_, ok := ts.Get()
	assert.False(t, ok)

	s.Logout()
	assert.Equal(t, st, s.Snapshot())
	assert.Equal(t, calls, b.count("GET /api/users/profile"), "logout makes no network call")
}

func TestRefreshProfile(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, ts := newSession(t, b, "stored")
	s.Start(context.Background())

	updated := &model.UserProfile{ID: "u_1", Email: "reader@folio.test", FirstName: "Rae", Role: "MEMBER"}
	b.setProfile(updated)
	require.NoError(t, s.RefreshProfile(context.Background()))
	assert.Equal(t, updated, s.Snapshot().User)

	b.setProfile(nil)
	b.setStatus(http.StatusInternalServerError)
	err := s.RefreshProfile(context.Background())
	require.Error(t, err)
	assert.Equal(t, updated, s.Snapshot().User, "failed refresh keeps the previous user")
	_, ok := ts.Get()
	assert.True(t, ok, "failed refresh does not evict")
}

func TestRuntimeUnauthorizedClearsSession(t *testing.T) {
	b := newBackend(t)
	b.setProfile(reader)
	s, ts := newSession(t, b, "stored")
	s.Start(context.Background())
	require.Equal(t, Active, s.Snapshot().Phase())

	b.setProfile(nil)
	b.setStatus(http.StatusUnauthorized)
	err := s.RefreshProfile(context.Background())
	assert.True(t, apiclient.IsUnauthorized(err))

	st := s.Snapshot()
	assert.False(t, st.IsAuthenticated())
	assert.Nil(t, st.User)
	_, ok := ts.Get()
	assert.False(t, ok)
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name  string
		user  *model.UserProfile
		roles []string
		want  bool
	}{
		{"nil user", nil, []string{"ADMIN"}, false},
		{"empty role", &model.UserProfile{}, []string{""}, false},
		{"exact", &model.UserProfile{Role: "ADMIN"}, []string{"ADMIN"}, true},
		{"user lower", &model.UserProfile{Role: "admin"}, []string{"ADMIN"}, true},
		{"query lower", &model.UserProfile{Role: "LIBRARIAN"}, []string{"admin", "librarian"}, true},
		{"mixed", &model.UserProfile{Role: "LiBrArIaN"}, []string{"Librarian"}, true},
		{"miss", &model.UserProfile{Role: "MEMBER"}, []string{"ADMIN", "LIBRARIAN"}, false},
		{"empty query", &model.UserProfile{Role: "MEMBER"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := State{Token: "t", User: tt.user}
			assert.Equal(t, tt.want, st.HasRole(tt.roles...))
		})
	}
}

func TestHasRole_SingleEqualsSet(t *testing.T) {
	st := State{Token: "t", User: &model.UserProfile{Role: "admin"}}
	assert.Equal(t, st.HasRole("ADMIN"), st.HasRole([]string{"ADMIN"}...))
}

func TestSubscribe_Cancel(t *testing.T) {
	b := newBackend(t)
	s, _ := newSession(t, b, "")
	var n atomic.Int32
	cancel := s.Subscribe(func(State) { n.Add(1) })
	s.Start(context.Background())
	cancel()
	s.Logout()
	assert.Equal(t, int32(1), n.Load())
}

func TestContext(t *testing.T) {
	b := newBackend(t)
	s, _ := newSession(t, b, "")

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), s)
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, s, got)
	assert.Same(t, s, MustFromContext(ctx))

	assert.PanicsWithValue(t, ErrNoSession, func() { MustFromContext(context.Background()) })
}
