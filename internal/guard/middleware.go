package guard

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Options configures RequireAuth.
type Options struct {
	LoginPath        string
	UnauthorizedPath string
	Roles            []string
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.UnauthorizedPath == "" {
		o.UnauthorizedPath = "/unauthorized"
	}
	return o
}

// RequireAuth is a middleware that protects routes with a Guard. Anonymous
// requests are redirected to the login path with error_code=unauthenticated
// and users outside the allowed roles to the unauthorized path. On success
// the session is added to the request context.
func RequireAuth(src SessionSource, opts Options) func(http.HandlerFunc) http.HandlerFunc {
	opts = opts.withDefaults()
	g := New(src, opts.Roles...)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sess := src.Session()

			switch g.Decide(sess) {
			case RedirectLogin:
				log.Debug().Str("path", r.URL.Path).Msg("No session, redirecting to login")
				http.Redirect(w, r, opts.LoginPath+"?error_code=unauthenticated", http.StatusFound)
				return
			case RedirectUnauthorized:
				var role string
				if sess.User != nil {
					role = sess.User.Role
				}
				log.Debug().Str("path", r.URL.Path).Str("role", role).Msg("Role not permitted, redirecting")
				http.Redirect(w, r, opts.UnauthorizedPath, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, &sess)
			next(w, r.WithContext(ctx))
		}
	}
}

// SessionFromContext returns the session stored by RequireAuth.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*session.Session)
	return sess, ok
}
