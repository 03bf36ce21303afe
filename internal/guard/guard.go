// Package guard decides whether the current session may reach a protected
// view, and re-decides whenever the session changes.
package guard

import (
	"strings"
	"sync"

	"github.com/wolfeidau/timax-console/internal/session"
)

// SessionSource is the read side of the session store.
type SessionSource interface {
	IsAuthenticated() bool
	CurrentRole() (string, bool)
	Session() session.Session
	Subscribe(onChange func(session.Session)) (unsubscribe func())
}

// Decision is the outcome of evaluating a guard.
type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	RedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case RedirectUnauthorized:
		return "redirect-unauthorized"
	default:
		return "unknown"
	}
}

// Role sets matching the backend permission classes.
var (
	AdminRoles      = []string{session.RoleAdmin}
	ManagerRoles    = []string{session.RoleAdmin, session.RoleManager}
	SalesRoles      = []string{session.RoleAdmin, session.RoleManager, session.RoleSalesAgent}
	TechnicianRoles = []string{session.RoleAdmin, session.RoleManager, session.RoleTechnician}
)

// Guard protects a view. An empty Roles admits any authenticated user.
type Guard struct {
	Source SessionSource
	Roles  []string
}

// New returns a guard over src restricted to roles.
func New(src SessionSource, roles ...string) *Guard {
	return &Guard{Source: src, Roles: roles}
}

// Evaluate decides against a single snapshot of the current session.
func (g *Guard) Evaluate() Decision {
	return g.Decide(g.Source.Session())
}

// Decide applies the guard to sess.
func (g *Guard) Decide(sess session.Session) Decision {
	if !sess.Authenticated {
		return RedirectLogin
	}
	if len(g.Roles) == 0 {
		return Allow
	}
	if sess.User == nil || sess.User.Role == "" || !roleAllowed(sess.User.Role, g.Roles) {
		return RedirectUnauthorized
	}
	return Allow
}

// Watch calls fn each time the decision changes. The decision at the time of
// the call is the baseline and is not reported.
func (g *Guard) Watch(fn func(Decision)) (stop func()) {
	var mu sync.Mutex
	last := g.Evaluate()

	return g.Source.Subscribe(func(sess session.Session) {
		decision := g.Decide(sess)

		mu.Lock()
		changed := decision != last
		last = decision
		mu.Unlock()

		if changed {
			fn(decision)
		}
	})
}

func roleAllowed(role string, allowed []string) bool {
	for _, r := range allowed {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
