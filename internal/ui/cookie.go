package ui

import (
	"net/http"
	"sync"
	"time"

	"github.com/me/folio/internal/tokenstore"
)

// DefaultCookieName is the cookie the access token travels in.
const DefaultCookieName = "token"

// cookieStore is a store.Store over one request's cookie jar. Reads see
// the request cookie until the handler writes; writes go out as Set-Cookie
// headers and are visible to later reads in the same request.
type cookieStore struct {
	name   string
	secure bool
	w      http.ResponseWriter

	mu      sync.Mutex
	value   string
	present bool
}

func newCookieStore(w http.ResponseWriter, r *http.Request, name string, secure bool) *cookieStore {
	cs := &cookieStore{name: name, secure: secure, w: w}
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		cs.value = c.Value
		cs.present = true
	}
	return cs
}

// GetItem implements store.Store. Only the token key is backed.
func (cs *cookieStore) GetItem(key string) (string, bool, error) {
	if key != tokenstore.Key {
		return "", false, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.value, cs.present, nil
}

// SetItem implements store.Store. The cookie expires with the token when
// the token carries an exp claim, else at the end of the browser session.
func (cs *cookieStore) SetItem(key, value string) error {
	if key != tokenstore.Key {
		return nil
	}
	cs.mu.Lock()
	cs.value, cs.present = value, true
	cs.mu.Unlock()

	c := cs.cookie(value)
	if claims, ok := tokenstore.Inspect(value); ok && !claims.ExpiresAt.IsZero() {
		c.Expires = claims.ExpiresAt
	}
	http.SetCookie(cs.w, c)
	return nil
}

// RemoveItem implements store.Store.
func (cs *cookieStore) RemoveItem(key string) error {
	if key != tokenstore.Key {
		return nil
	}
	cs.mu.Lock()
	had := cs.present
	cs.value, cs.present = "", false
	cs.mu.Unlock()

	if had {
		c := cs.cookie("")
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(cs.w, c)
	}
	return nil
}

func (cs *cookieStore) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     cs.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   cs.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
