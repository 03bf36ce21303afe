package guard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfeidau/timax-console/internal/session"
)

var _ SessionSource = (*session.Store)(nil)

type stubSource struct {
	mu   sync.Mutex
	sess session.Session
	subs map[int]func(session.Session)
	next int
}

func newStubSource() *stubSource {
	return &stubSource{subs: make(map[int]func(session.Session))}
}

func (s *stubSource) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Authenticated
}

func (s *stubSource) CurrentRole() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.Authenticated || s.sess.User == nil {
		return "", false
	}
	return s.sess.User.Role, true
}

func (s *stubSource) Session() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *stubSource) Subscribe(fn func(session.Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *stubSource) set(sess session.Session) {
	s.mu.Lock()
	s.sess = sess
	subs := make([]func(session.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(sess)
	}
}

func (s *stubSource) login(role string) {
	s.set(session.Session{
		Authenticated: true,
		User:          &session.Identity{Email: "agent@timax.example", Role: role},
	})
}

func (s *stubSource) logout() {
	s.set(session.Session{})
}

func TestGuard_Evaluate(t *testing.T) {
	tests := []struct {
		name  string
		anon  bool
		login string
		roles []string
		want  Decision
	}{
		{name: "anonymous", anon: true, want: RedirectLogin},
		{name: "anonymous with roles", anon: true, roles: ManagerRoles, want: RedirectLogin},
		{name: "any authenticated user", login: session.RoleAccountant, want: Allow},
		{name: "role allowed", login: session.RoleManager, roles: ManagerRoles, want: Allow},
		{name: "role matched case insensitively", login: "sales_agent", roles: SalesRoles, want: Allow},
		{name: "role denied", login: session.RoleTechnician, roles: SalesRoles, want: RedirectUnauthorized},
		{name: "admin only", login: session.RoleManager, roles: AdminRoles, want: RedirectUnauthorized},
		{name: "technician views", login: session.RoleTechnician, roles: TechnicianRoles, want: Allow},
		{name: "missing role", login: "", roles: AdminRoles, want: RedirectUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newStubSource()
			if !tt.anon {
				src.login(tt.login)
			}
			assert.Equal(t, tt.want, New(src, tt.roles...).Evaluate())
		})
	}
}

// splitSource answers the per-field accessors from a different session than
// Session, as happens when a teardown lands between two separate reads.
type splitSource struct {
	*stubSource
}

func (splitSource) IsAuthenticated() bool { return true }

func (splitSource) CurrentRole() (string, bool) { return "", false }

func TestGuard_EvaluateUsesOneSnapshot(t *testing.T) {
	src := splitSource{stubSource: newStubSource()}

	assert.Equal(t, RedirectLogin, New(src, AdminRoles...).Evaluate())

	src.login(session.RoleAdmin)
	assert.Equal(t, Allow, New(src, AdminRoles...).Evaluate())
}

func TestGuard_Watch(t *testing.T) {
	t.Run("reports changes only", func(t *testing.T) {
		src := newStubSource()
		g := New(src, ManagerRoles...)

		var got []Decision
		stop := g.Watch(func(d Decision) { got = append(got, d) })

		src.login(session.RoleManager)
		src.login(session.RoleManager)
		src.logout()
		src.login(session.RoleInventoryClerk)

		assert.Equal(t, []Decision{Allow, RedirectLogin, RedirectUnauthorized}, got)

		stop()
		src.logout()
		assert.Len(t, got, 3)
	})

	t.Run("authenticated to anonymous", func(t *testing.T) {
		src := newStubSource()
		src.login(session.RoleAdmin)
		g := New(src)

		var got []Decision
		g.Watch(func(d Decision) { got = append(got, d) })
		src.logout()

		assert.Equal(t, []Decision{RedirectLogin}, got)
	})
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "redirect-login", RedirectLogin.String())
	assert.Equal(t, "redirect-unauthorized", RedirectUnauthorized.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
