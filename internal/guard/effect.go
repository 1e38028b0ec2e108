package guard

import (
	"sync"

	"github.com/me/folio/internal/session"
)

// Navigator performs a history-replacing navigation.
type Navigator interface {
	Replace(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Replace calls f(target).
func (f NavigatorFunc) Replace(target string) { f(target) }

// Enforce applies d: Redirect and Forbidden navigate to d.Target, other
// kinds do nothing. It reports whether navigation happened.
func Enforce(d Decision, nav Navigator) bool {
	if !d.Navigates() {
		return false
	}
	nav.Replace(d.Target)
	return true
}

// Watch evaluates the guard now and after every session change, enforcing
// each navigating decision once per distinct target. Navigator calls are
// serialized. The returned func stops watching.
func Watch(s *session.Session, p Policy, currentPath string, nav Navigator) (stop func()) {
	var (
		mu   sync.Mutex
		last Decision
	)
	run := func(st session.State) {
		mu.Lock()
		defer mu.Unlock()
		d := Decide(st, p, currentPath)
		if d == last {
			return
		}
		last = d
		Enforce(d, nav)
	}

	cancel := s.Subscribe(run)
	run(s.Snapshot())
	return cancel
}
