package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/timax-console/internal/session"
)

func TestRequireAuth(t *testing.T) {
	protected := func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "no session", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(sess.User.Email))
	}

	t.Run("anonymous requests are redirected to login", func(t *testing.T) {
		src := newStubSource()
		handler := RequireAuth(src, Options{LoginPath: "/login"})(protected)

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login?error_code=unauthenticated", rec.Header().Get("Location"))
	})

	t.Run("forbidden roles are redirected to unauthorized", func(t *testing.T) {
		src := newStubSource()
		src.login(session.RoleTechnician)
		handler := RequireAuth(src, Options{Roles: AdminRoles})(protected)

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/unauthorized", rec.Header().Get("Location"))
	})

	t.Run("allowed requests carry the session", func(t *testing.T) {
		src := newStubSource()
		src.login(session.RoleManager)
		handler := RequireAuth(src, Options{Roles: ManagerRoles})(protected)

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "agent@timax.example", rec.Body.String())
	})

	t.Run("a logout between requests is enforced", func(t *testing.T) {
		src := newStubSource()
		src.login(session.RoleManager)
		handler := RequireAuth(src, Options{})(protected)

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		src.logout()
		rec = httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusFound, rec.Code)
	})
}

func TestSessionFromContext_Missing(t *testing.T) {
	_, ok := SessionFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
