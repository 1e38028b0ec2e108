package ui

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/me/folio/internal/guard"
	"github.com/me/folio/internal/session"
)

// DefaultLanding is where a login without a redirect parameter lands.
const DefaultLanding = "/books"

// HandleLogin renders the login page.
func (ui *UI) HandleLogin(w http.ResponseWriter, r *http.Request) {
	target := guard.SafeRedirect(r.URL.Query().Get(guard.RedirectParam), DefaultLanding)

	// If already logged in, go straight to the target.
	if ui.session(r).Snapshot().IsAuthenticated() {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	data := ui.page(r, "Login - Folio")
	data["Redirect"] = target
	data["Email"] = r.URL.Query().Get("email")
	data["ShowTOTP"] = r.URL.Query().Get("totp") == "1"
	ui.render(w, "login", data)
}

// HandleLoginPost processes the login form.
func (ui *UI) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=Invalid+request", http.StatusSeeOther)
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	totp := strings.TrimSpace(r.FormValue("totp"))
	target := guard.SafeRedirect(r.FormValue(guard.RedirectParam), DefaultLanding)

	retry := func(msg string) {
		q := url.Values{}
		q.Set(guard.RedirectParam, target)
		q.Set("email", email)
		q.Set("error", msg)
		if totp != "" || r.FormValue("show_totp") != "" {
			q.Set("totp", "1")
		}
		http.Redirect(w, r, "/login?"+q.Encode(), http.StatusSeeOther)
	}

	if email == "" || password == "" {
		retry("Email and password required")
		return
	}

	err := ui.session(r).Login(r.Context(), session.LoginRequest{Email: email, Password: password, TOTP: totp})
	switch {
	case err == nil:
		ui.logger.Info("user logged in", "email", email)
		http.Redirect(w, r, target, http.StatusSeeOther)
	case errors.Is(err, session.ErrAuthenticationRejected):
		ui.logger.Warn("login profile fetch failed", "email", email, "error", err)
		retry("Signed in, but your profile could not be loaded")
	case errors.Is(err, session.ErrCredentialMissing):
		ui.logger.Error("login response without token", "email", email)
		retry("Login failed")
	default:
		ui.logger.Warn("login failed", "email", email, "error", err)
		retry(failure(err))
	}
}

// HandleRegister renders the registration page.
func (ui *UI) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if ui.session(r).Snapshot().IsAuthenticated() {
		http.Redirect(w, r, DefaultLanding, http.StatusSeeOther)
		return
	}
	ui.render(w, "register", ui.page(r, "Register - Folio"))
}

// HandleRegisterPost creates the account and logs it in.
func (ui *UI) HandleRegisterPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/register?error=Invalid+request", http.StatusSeeOther)
		return
	}
	req := session.RegisterRequest{
		Email:     strings.TrimSpace(r.FormValue("email")),
		Password:  r.FormValue("password"),
		FirstName: strings.TrimSpace(r.FormValue("first_name")),
		LastName:  strings.TrimSpace(r.FormValue("last_name")),
	}
	if req.Email == "" || req.Password == "" {
		back(w, r, "/register", "error", "Email and password required")
		return
	}
	if req.Password != r.FormValue("confirm") {
		back(w, r, "/register", "error", "Passwords do not match")
		return
	}

	sess := ui.session(r)
	if err := sess.Register(r.Context(), req); err != nil {
		ui.logger.Info("registration rejected", "email", req.Email, "error", err)
		back(w, r, "/register", "error", failure(err))
		return
	}
	ui.logger.Info("user registered", "email", req.Email)

	if err := sess.Login(r.Context(), session.LoginRequest{Email: req.Email, Password: req.Password}); err != nil {
		ui.logger.Warn("login after registration failed", "email", req.Email, "error", err)
		back(w, r, "/login", "flash", "Account created. Please sign in.")
		return
	}
	http.Redirect(w, r, DefaultLanding, http.StatusSeeOther)
}

// HandleLogout clears the session and redirects to login.
func (ui *UI) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ui.session(r).Logout()
	http.Redirect(w, r, guard.DefaultRedirect, http.StatusSeeOther)
}

// HandleForbidden renders the access denied page.
func (ui *UI) HandleForbidden(w http.ResponseWriter, r *http.Request) {
	ui.setHTML(w)
	w.WriteHeader(http.StatusForbidden)
	ui.renderBody(w, "forbidden", ui.page(r, "Access denied - Folio"))
}

// HandleNotFound renders the not found page.
func (ui *UI) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	data := ui.page(r, "Not Found - Folio")
	data["Message"] = "Page not found"
	ui.setHTML(w)
	w.WriteHeader(http.StatusNotFound)
	ui.renderBody(w, "error", data)
}
