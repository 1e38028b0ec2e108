package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"strings"
	"testing"

	"github.com/me/folio/internal/config"
	"github.com/me/folio/internal/devapi"
	"github.com/me/folio/internal/paging"
	"github.com/me/folio/pkg/model"
)

// startTestServer starts a dev backend and points HOME at a fresh
// directory so stored tokens do not leak between tests.
func startTestServer(t *testing.T) string {
	t.Helper()
	return startWrappedServer(t, nil)
}

// startWrappedServer is startTestServer with wrap applied around the dev
// backend's handler.
func startWrappedServer(t *testing.T, wrap func(http.Handler) http.Handler) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := config.DefaultDevAPIConfig()
	cfg.BcryptCost = 4
	srv, err := devapi.New(cfg, nil)
	if err != nil {
		t.Fatalf("start dev API: %v", err)
	}
	h := srv.Handler()
	if wrap != nil {
		h = wrap(h)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--server", url}, args...))

	err := execute(context.Background(), root)
	return buf.String(), err
}

func loginAs(t *testing.T, url, email string, extra ...string) {
	t.Helper()
	args := append([]string{"login", "--email", email, "--password", devapi.DemoPassword}, extra...)
	out, err := runCLI(t, url, args...)
	if err != nil {
		t.Fatalf("login %s: %v\noutput: %s", email, err, out)
	}
}

func firstAvailableCopy(t *testing.T, url, search string) string {
	t.Helper()
	out, err := runCLI(t, url, "books", "list", "--search", search, "-o", "json")
	if err != nil {
		t.Fatalf("books list: %v", err)
	}
	var res paging.Result[model.Book]
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode books: %v\noutput: %s", err, out)
	}
	if len(res.Items) == 0 {
		t.Fatalf("no book matches %q", search)
	}
	avail := res.Items[0].AvailableCopies()
	if len(avail) == 0 {
		t.Fatalf("%q has no available copy", search)
	}
	return avail[0].ID
}

func TestLoginAndWhoami(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, url, "login", "--email", devapi.DemoMemberEmail, "--password", devapi.DemoPassword)
	if err != nil {
		t.Fatalf("login error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Logged in as Rita Reader (MEMBER)") {
		t.Errorf("unexpected login output: %s", out)
	}

	out, err = runCLI(t, url, "whoami")
	if err != nil {
		t.Fatalf("whoami error: %v", err)
	}
	for _, want := range []string{devapi.DemoMemberEmail, "Active", "Expires:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in whoami output, got: %s", want, out)
		}
	}
}

func TestWhoami_Refresh(t *testing.T) {
	var profiles, failAfter atomic.Int32
	url := startWrappedServer(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/users/profile" {
				n := profiles.Add(1)
				if limit := failAfter.Load(); limit > 0 && n > limit {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusServiceUnavailable)
					json.NewEncoder(w).Encode(model.NewErrorBody(http.StatusServiceUnavailable, "Profile service down"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	})
	loginAs(t, url, devapi.DemoMemberEmail)

	profiles.Store(0)
	out, err := runCLI(t, url, "whoami", "--refresh")
	if err != nil {
		t.Fatalf("whoami --refresh: %v", err)
	}
	if !strings.Contains(out, devapi.DemoMemberEmail) {
		t.Errorf("expected email in output, got: %s", out)
	}
	if got := profiles.Load(); got != 2 {
		t.Errorf("profile fetched %d times, want 2 (startup and refresh)", got)
	}

	// Startup succeeds, the refresh fails.
	profiles.Store(0)
	failAfter.Store(1)
	_, err = runCLI(t, url, "whoami", "--refresh")
	if err == nil || !strings.Contains(err.Error(), "Profile service down") {
		t.Fatalf("expected refresh error, got %v", err)
	}
	if errors.Is(err, ErrLoginRequired) {
		t.Errorf("a failed refresh must not end the session: %v", err)
	}
}

func TestLogin_BadPassword(t *testing.T) {
	url := startTestServer(t)

	_, err := runCLI(t, url, "login", "--email", devapi.DemoMemberEmail, "--password", "wrong")
	if err == nil || !strings.Contains(err.Error(), "Invalid credentials") {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	_, err = runCLI(t, url, "whoami")
	if !errors.Is(err, ErrLoginRequired) {
		t.Errorf("expected ErrLoginRequired after failed login, got %v", err)
	}
}

func TestLogin_TwoFactor(t *testing.T) {
	url := startTestServer(t)

	_, err := runCLI(t, url, "login", "--email", devapi.DemoAdminEmail, "--password", devapi.DemoPassword)
	if err == nil || !strings.Contains(err.Error(), "Two-factor code required") {
		t.Fatalf("expected two-factor rejection, got %v", err)
	}
	loginAs(t, url, devapi.DemoAdminEmail, "--totp", "123456")
}

func TestLogout(t *testing.T) {
	url := startTestServer(t)
	loginAs(t, url, devapi.DemoMemberEmail)

	out, err := runCLI(t, url, "logout")
	if err != nil {
		t.Fatalf("logout error: %v", err)
	}
	if !strings.Contains(out, "Logged out.") {
		t.Errorf("unexpected logout output: %s", out)
	}
	if _, err := runCLI(t, url, "loans", "mine"); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("expected ErrLoginRequired, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, url, "register",
		"--email", "new@folio.test", "--password", "hunter22",
		"--first-name", "Nell", "--last-name", "New")
	if err != nil {
		t.Fatalf("register error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "logged in as new@folio.test") {
		t.Errorf("unexpected register output: %s", out)
	}

	out, err = runCLI(t, url, "whoami", "-o", "json")
	if err != nil {
		t.Fatalf("whoami error: %v", err)
	}
	var w whoami
	if err := json.Unmarshal([]byte(out), &w); err != nil {
		t.Fatalf("decode whoami: %v", err)
	}
	if w.User == nil || w.User.Role != model.RoleMember {
		t.Errorf("expected new MEMBER account, got %+v", w.User)
	}
}

func TestBooksList_Anonymous(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, url, "books", "list")
	if err != nil {
		t.Fatalf("books list error: %v", err)
	}
	if !strings.Contains(out, "TITLE") || !strings.Contains(out, "Middlemarch") {
		t.Errorf("unexpected books output: %s", out)
	}
}

func TestProtectedCommand_NoSession(t *testing.T) {
	url := startTestServer(t)

	_, err := runCLI(t, url, "loans", "mine")
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
}

func TestProtectedCommand_TokenRevokedMidCommand(t *testing.T) {
	var revoked atomic.Bool
	url := startWrappedServer(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if revoked.Load() && r.URL.Path == "/api/loans/my" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(model.NewErrorBody(http.StatusUnauthorized, "Token revoked"))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	loginAs(t, url, devapi.DemoMemberEmail)
	revoked.Store(true)

	// The profile still loads, so the command starts with an active session.
	_, err := runCLI(t, url, "loans", "mine")
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	if !strings.Contains(err.Error(), "Token revoked") {
		t.Errorf("expected the API message to be kept, got %v", err)
	}

	if _, err := runCLI(t, url, "whoami"); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("expected the stored token to be cleared, got %v", err)
	}
}

func TestStaffCommand_Member(t *testing.T) {
	url := startTestServer(t)
	loginAs(t, url, devapi.DemoMemberEmail)

	if _, err := runCLI(t, url, "users", "list"); !errors.Is(err, ErrForbidden) {
		t.Errorf("users list: expected ErrForbidden, got %v", err)
	}
	if _, err := runCLI(t, url, "loans", "all"); !errors.Is(err, ErrForbidden) {
		t.Errorf("loans all: expected ErrForbidden, got %v", err)
	}
}

func TestReserveAndCancel(t *testing.T) {
	url := startTestServer(t)
	loginAs(t, url, devapi.DemoMemberEmail)
	copyID := firstAvailableCopy(t, url, "go programming")

	out, err := runCLI(t, url, "reserve", copyID, "-o", "json")
	if err != nil {
		t.Fatalf("reserve error: %v\noutput: %s", err, out)
	}
	var r model.Reservation
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode reservation: %v", err)
	}
	if r.Status != model.ReservationPending {
		t.Errorf("expected pending reservation, got %s", r.Status)
	}

	out, err = runCLI(t, url, "res", "mine")
	if err != nil {
		t.Fatalf("reservations mine error: %v", err)
	}
	if !strings.Contains(out, r.ID) || !strings.Contains(out, "The Go Programming Language") {
		t.Errorf("expected reservation in list, got: %s", out)
	}

	out, err = runCLI(t, url, "reservations", "cancel", r.ID, "--yes")
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if !strings.Contains(out, "cancelled") {
		t.Errorf("unexpected cancel output: %s", out)
	}
}

func TestBorrowAndStaffReturn(t *testing.T) {
	url := startTestServer(t)
	loginAs(t, url, devapi.DemoMemberEmail)
	copyID := firstAvailableCopy(t, url, "kleppmann")

	out, err := runCLI(t, url, "borrow", copyID, "-o", "json")
	if err != nil {
		t.Fatalf("borrow error: %v\noutput: %s", err, out)
	}
	var l model.Loan
	if err := json.Unmarshal([]byte(out), &l); err != nil {
		t.Fatalf("decode loan: %v", err)
	}

	if _, err := runCLI(t, url, "return", l.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member return: expected ErrForbidden, got %v", err)
	}

	loginAs(t, url, devapi.DemoAdminEmail, "--totp", "123456")
	out, err = runCLI(t, url, "return", l.ID)
	if err != nil {
		t.Fatalf("return error: %v", err)
	}
	if !strings.Contains(out, "Loan "+l.ID+" returned.") {
		t.Errorf("unexpected return output: %s", out)
	}

	out, err = runCLI(t, url, "loans", "all", "-o", "yaml")
	if err != nil {
		t.Fatalf("loans all error: %v", err)
	}
	if !strings.Contains(out, "status: returned") {
		t.Errorf("expected returned loan in yaml output, got: %s", out)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	url := startTestServer(t)

	_, err := runCLI(t, url, "books", "list", "-o", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("expected output format error, got %v", err)
	}
}
