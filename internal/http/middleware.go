package http

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/activity"
)

// Reporter accepts user activity.
type Reporter interface {
	Report(kind activity.Kind) bool
}

// ClientIP returns the caller address, preferring X-Forwarded-For and
// X-Real-IP over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ActivityMiddleware counts every page request as a click, so navigating the
// console keeps the session alive.
func ActivityMiddleware(reporter Reporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodPost {
				reporter.Report(activity.KindClick)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type activityRequest struct {
	Kinds []string `json:"kinds"`
}

// ActivityHandler accepts batched DOM activity from the browser as
// {"kinds": ["mousemove", "keypress"]} and reports each recognised kind.
func ActivityHandler(reporter Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req activityRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
			http.Error(w, "invalid activity payload", http.StatusBadRequest)
			return
		}

		accepted := 0
		for _, name := range req.Kinds {
			if reporter.Report(activity.ParseKind(name)) {
				accepted++
			}
		}

		log.Debug().
			Str("client_ip", ClientIP(r)).
			Int("received", len(req.Kinds)).
			Int("accepted", accepted).
			Msg("Activity reported")

		w.WriteHeader(http.StatusNoContent)
	}
}
