package devapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/me/folio/pkg/model"
)

// Context keys set by jwtAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// issueToken signs an HS256 access token for a.
func (s *Server) issueToken(a *account) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   a.profile.ID,
		"email": a.profile.Email,
		"role":  a.profile.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(s.cfg.AccessTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(s.cfg.JWTSecret))
}

// jwtAuth validates the Bearer access token and stores its subject and
// role on the context.
func (s *Server) jwtAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(s.cfg.JWTSecret), nil
			}, jwt.WithTimeFunc(s.now))
			if err != nil || !tok.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			sub, _ := claims["sub"].(string)
			role, _ := claims["role"].(string)

			s.lib.mu.Lock()
			_, known := s.lib.users[sub]
			s.lib.mu.Unlock()
			if !known {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			c.Set(ctxUserID, sub)
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}

// requireRole rejects requests whose role claim is not one of roles.
func requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ctxRole).(string)
			for _, r := range roles {
				if strings.EqualFold(role, r) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		}
	}
}

// currentUser returns the account behind the validated token. The caller
// holds s.lib.mu.
func (s *Server) currentUser(c echo.Context) (*account, error) {
	id, _ := c.Get(ctxUserID).(string)
	a, ok := s.lib.users[id]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return a, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *Server) authenticate(c echo.Context, twoFactor bool) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	var msgs validationError
	if strings.TrimSpace(req.Email) == "" {
		msgs = append(msgs, "email should not be empty")
	}
	if req.Password == "" {
		msgs = append(msgs, "password should not be empty")
	}
	if twoFactor && req.Code == "" {
		msgs = append(msgs, "code should not be empty")
	}
	if len(msgs) > 0 {
		return msgs
	}

	s.lib.mu.Lock()
	a, ok := s.lib.userByEmail(req.Email)
	s.lib.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(a.hash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}
	switch {
	case a.profile.TwoFactorEnabled && !twoFactor:
		return echo.NewHTTPError(http.StatusUnauthorized, "Two-factor code required")
	case twoFactor && (!a.profile.TwoFactorEnabled || req.Code != s.cfg.TOTPCode):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid two-factor code")
	}

	token, err := s.issueToken(a)
	if err != nil {
		return err
	}
	s.logger.Info("issued token", "user_id", a.profile.ID, "two_factor", twoFactor)
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: token})
}

func (s *Server) handleLogin(c echo.Context) error {
	return s.authenticate(c, false)
}

func (s *Server) handleTwoFactorLogin(c echo.Context) error {
	return s.authenticate(c, true)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	var msgs validationError
	if !strings.Contains(req.Email, "@") {
		msgs = append(msgs, "email must be an email")
	}
	if len(req.Password) < 6 {
		msgs = append(msgs, "password must be longer than or equal to 6 characters")
	}
	if len(msgs) > 0 {
		return msgs
	}

	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	if _, taken := s.lib.userByEmail(req.Email); taken {
		return echo.NewHTTPError(http.StatusConflict, "Email already registered")
	}
	a, err := s.lib.addUser(model.UserProfile{
		Email:     strings.TrimSpace(req.Email),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      model.RoleMember,
	}, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a.profile)
}

func (s *Server) handleProfile(c echo.Context) error {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	a, err := s.currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.profile)
}
