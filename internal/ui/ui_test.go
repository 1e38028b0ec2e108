package ui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/me/folio/internal/apiclient"
	"github.com/me/folio/internal/cache"
)

var testUsers = map[string]string{
	"member-token": `{"id":"u1","email":"reader@folio.test","firstName":"Rita","role":"MEMBER"}`,
	"admin-token":  `{"id":"u2","email":"admin@folio.test","role":"ADMIN"}`,
}

// newBackend serves the slice of the library API the pages use.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(w http.ResponseWriter, r *http.Request) (string, bool) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, ok := testUsers[token]; !ok {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"statusCode":401,"message":"Unauthorized"}`))
			return "", false
		}
		return token, true
	}
	mux.HandleFunc("GET /api/users/profile", func(w http.ResponseWriter, r *http.Request) {
		if token, ok := auth(w, r); ok {
			w.Write([]byte(testUsers[token]))
		}
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "reader@folio.test" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"statusCode":401,"message":"Invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token":"member-token"}`))
	})
	mux.HandleFunc("GET /api/books", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"b1","title":"Dune","author":"Frank Herbert"}],"meta":{"total":1,"page":1,"pageSize":10}}`))
	})
	mux.HandleFunc("GET /api/loans/my", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth(w, r); ok {
			w.Write([]byte(`[{"id":"l1","status":"active","borrowedAt":"2026-01-02T10:00:00Z","copy":{"id":"c1","book":{"id":"b1","title":"Dune"}}}]`))
		}
	})
	mux.HandleFunc("GET /api/reservations/my", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth(w, r); ok {
			w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("PATCH /api/reservations/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth(w, r); ok {
			if r.PathValue("id") != "r1" {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"statusCode":404,"message":"Reservation not found"}`))
				return
			}
			w.Write([]byte(`{"id":"r1","status":"cancelled"}`))
		}
	})
	mux.HandleFunc("GET /api/reservations/pending", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth(w, r); ok {
			w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("GET /api/loans", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth(w, r); ok {
			w.Write([]byte(`{"data":[],"total":0}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	backend := newBackend(t)
	u := New(Config{}, Deps{
		API:   apiclient.New(backend.URL, nil),
		Cache: cache.NewMemory(),
	})
	r := chi.NewRouter()
	u.RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, token string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func tokenCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestProtectedPage_RedirectsToLogin(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/my/loans", "", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?redirect=%2Fmy%2Floans" {
		t.Errorf("unexpected Location %q", loc)
	}
	if strings.Contains(w.Body.String(), "My loans") {
		t.Error("protected content rendered for anonymous request")
	}
}

func TestProtectedPage_RendersForMember(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/my/loans", "member-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Dune") || !strings.Contains(body, "Rita") {
		t.Errorf("page missing loan or user name:\n%s", body)
	}
}

func TestStaffPage_ForbiddenForMember(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/admin", "member-token", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/403" {
		t.Errorf("expected redirect to /403, got %q", loc)
	}
	if strings.Contains(w.Body.String(), "Pending reservations") {
		t.Error("admin content rendered for member")
	}

	w = do(t, h, http.MethodGet, "/403", "member-token", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 page status, got %d", w.Code)
	}
}

func TestStaffPage_RendersForAdmin(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/admin", "admin-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Pending reservations") {
		t.Error("admin panel not rendered")
	}
}

func TestRejectedCookie_IsCleared(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/my/loans", "stale-token", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	c := tokenCookie(w)
	if c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected token cookie to be deleted, got %+v", c)
	}
}

func TestPublicPage_AnonymousAndStaleCookie(t *testing.T) {
	h := newTestRouter(t)

	for _, token := range []string{"", "stale-token"} {
		w := do(t, h, http.MethodGet, "/books", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("token %q: expected 200, got %d", token, w.Code)
		}
		if !strings.Contains(w.Body.String(), "Dune") {
			t.Errorf("token %q: book list not rendered", token)
		}
	}
}

func TestLogin_SetsCookieAndRedirects(t *testing.T) {
	h := newTestRouter(t)

	form := url.Values{"email": {"reader@folio.test"}, "password": {"secret"}, "redirect": {"/my/loans"}}
	w := do(t, h, http.MethodPost, "/login", "", form)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/my/loans" {
		t.Errorf("expected redirect to /my/loans, got %q", loc)
	}
	c := tokenCookie(w)
	if c == nil || c.Value != "member-token" {
		t.Fatalf("expected token cookie, got %+v", c)
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attributes: HttpOnly=%v SameSite=%v", c.HttpOnly, c.SameSite)
	}
}

func TestLogin_RejectsOffsiteRedirect(t *testing.T) {
	h := newTestRouter(t)

	form := url.Values{"email": {"reader@folio.test"}, "password": {"secret"}, "redirect": {"//evil.example/"}}
	w := do(t, h, http.MethodPost, "/login", "", form)
	if loc := w.Header().Get("Location"); loc != DefaultLanding {
		t.Errorf("expected redirect to %s, got %q", DefaultLanding, loc)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	h := newTestRouter(t)

	form := url.Values{"email": {"reader@folio.test"}, "password": {"wrong"}}
	w := do(t, h, http.MethodPost, "/login", "", form)
	loc, _ := url.Parse(w.Header().Get("Location"))
	if loc.Path != "/login" || loc.Query().Get("error") != "Invalid credentials" {
		t.Errorf("unexpected Location %q", loc)
	}
	if tokenCookie(w) != nil {
		t.Error("cookie set on failed login")
	}
}

func TestFormPost_FlashesOutcome(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/my/reservations/r1/cancel", "member-token", nil)
	loc, _ := url.Parse(w.Header().Get("Location"))
	if w.Code != http.StatusSeeOther || loc.Path != "/my/reservations" || loc.Query().Get("flash") != "Reservation cancelled" {
		t.Fatalf("unexpected redirect %d %q", w.Code, loc)
	}
	w = do(t, h, http.MethodGet, loc.String(), "member-token", nil)
	if !strings.Contains(w.Body.String(), "Reservation cancelled") {
		t.Errorf("flash not rendered: %s", w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/my/reservations/r9/cancel", "member-token", nil)
	loc, _ = url.Parse(w.Header().Get("Location"))
	if loc.Query().Get("error") != "Reservation not found" || loc.Query().Has("flash") {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestLoginPage_AuthenticatedRedirects(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/login?redirect=%2Fmy%2Freservations", "member-token", nil)
	if loc := w.Header().Get("Location"); loc != "/my/reservations" {
		t.Errorf("expected redirect to /my/reservations, got %q", loc)
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/logout", "member-token", nil)
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("expected redirect to /login, got %q", loc)
	}
	if c := tokenCookie(w); c == nil || c.MaxAge >= 0 {
		t.Errorf("expected cookie deletion, got %+v", c)
	}
}

func TestCookieStore_ExpiryFromToken(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test"))
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	cs := newCookieStore(w, httptest.NewRequest(http.MethodGet, "/", nil), "token", true)
	if err := cs.SetItem("token", token); err != nil {
		t.Fatal(err)
	}
	v, ok, _ := cs.GetItem("token")
	if !ok || v != token {
		t.Errorf("GetItem after SetItem = %q, %v", v, ok)
	}

	c := tokenCookie(w)
	if c == nil {
		t.Fatal("no cookie written")
	}
	if !c.Secure {
		t.Error("expected Secure cookie")
	}
	if !c.Expires.Equal(exp) {
		t.Errorf("expected Expires %v, got %v", exp, c.Expires)
	}
}

func TestCookieStore_IgnoresOtherKeys(t *testing.T) {
	w := httptest.NewRecorder()
	cs := newCookieStore(w, httptest.NewRequest(http.MethodGet, "/", nil), "token", false)
	cs.SetItem("other", "x")
	cs.RemoveItem("token")
	if len(w.Result().Cookies()) != 0 {
		t.Errorf("unexpected cookies: %v", w.Result().Cookies())
	}
}
