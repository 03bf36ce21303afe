package commands

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/activity"
	"github.com/wolfeidau/timax-console/internal/broadcast"
	"github.com/wolfeidau/timax-console/internal/guard"
	httpmiddleware "github.com/wolfeidau/timax-console/internal/http"
	"github.com/wolfeidau/timax-console/internal/session"
)

var logoutMessages = map[string]string{
	"unauthenticated":                     "Please log in to continue.",
	string(broadcast.ReasonTokenExpired):   "Your session expired. Please log in again.",
	string(broadcast.ReasonInactivity):     "You were logged out after a period of inactivity.",
	string(broadcast.ReasonServerRejected): "The server rejected your session. Please log in again.",
	string(broadcast.ReasonUserInitiated):  "You have been logged out.",
	"password_changed":                    "Your password was changed. Please log in with the new password.",
}

type consoleHandlers struct {
	store       *session.Store
	activity    *activity.Hub
	resource    *http.Client
	branchesURL string

	mu         sync.Mutex
	lastReason broadcast.Reason
}

func newConsoleHandlers(store *session.Store, b *broadcast.Broadcaster, hub *activity.Hub, resource *http.Client, serverURL string) *consoleHandlers {
	h := &consoleHandlers{
		store:       store,
		activity:    hub,
		resource:    resource,
		branchesURL: strings.TrimSuffix(serverURL, "/") + "/api/v1/auth/branches/",
	}
	b.Subscribe(h.onForcedLogout)
	store.Subscribe(h.onSessionChange)
	return h
}

// onSessionChange forgets the previous logout reason once a user is back in.
func (h *consoleHandlers) onSessionChange(sess session.Session) {
	if !sess.Authenticated {
		return
	}
	h.mu.Lock()
	h.lastReason = ""
	h.mu.Unlock()
}

// onForcedLogout remembers why the session ended; open pages pick it up on
// their next poll and navigate to the login view.
func (h *consoleHandlers) onForcedLogout(_ context.Context, evt broadcast.Event) {
	h.mu.Lock()
	h.lastReason = evt.Reason
	h.mu.Unlock()

	log.Info().Str("reason", string(evt.Reason)).Msg("Session ended, navigating to login")
}

func (h *consoleHandlers) reason() broadcast.Reason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReason
}

func (h *consoleHandlers) routes(corsOrigins []string) http.Handler {
	mux := http.NewServeMux()
	pages := httpmiddleware.ActivityMiddleware(h.activity)

	requireAuth := guard.RequireAuth(h.store, guard.Options{LoginPath: "/login", UnauthorizedPath: "/unauthorized"})
	requireAdmin := guard.RequireAuth(h.store, guard.Options{LoginPath: "/login", UnauthorizedPath: "/unauthorized", Roles: guard.AdminRoles})

	mux.HandleFunc("GET /login", h.loginPage)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("GET /unauthorized", h.unauthorized)
	mux.Handle("GET /{$}", pages(requireAuth(h.dashboard)))
	mux.Handle("GET /admin", pages(requireAdmin(h.admin)))
	mux.Handle("GET /account", pages(requireAuth(h.account)))
	mux.Handle("POST /account/profile", pages(requireAuth(h.updateProfile)))
	mux.Handle("POST /account/password", pages(requireAuth(h.changePassword)))

	mux.HandleFunc("GET /api/session", h.sessionState)
	mux.HandleFunc("/api/activity", httpmiddleware.ActivityHandler(h.activity))
	mux.HandleFunc("GET /api/branches", h.branches)

	protection := csrf.New()
	for _, origin := range corsOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			log.Warn().Err(err).Str("origin", origin).Msg("Ignoring CORS origin for cross-origin checks")
		}
	}

	// API routes get CORS on top of the cross-origin checks, so only the
	// configured origins can post activity or read session state.
	api := withCORS(corsOrigins, protection.Handler(mux))
	pagesHandler := protection.Handler(mux)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
		} else {
			pagesHandler.ServeHTTP(w, r)
		}
	})
}

func (h *consoleHandlers) loginPage(w http.ResponseWriter, r *http.Request) {
	if h.store.IsAuthenticated() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	code := r.URL.Query().Get("error_code")
	if code == "" {
		code = string(h.reason())
	}
	render(w, http.StatusOK, loginTemplate, map[string]any{"Message": logoutMessages[code], "Email": ""})
}

func (h *consoleHandlers) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	creds := session.Credentials{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	_, err := h.store.Login(r.Context(), creds)
	switch {
	case err == nil, errors.Is(err, session.ErrInvalidState):
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, session.ErrSessionRaceDiscarded):
		// superseded by a logout or a newer login
		log.Debug().Str("email", creds.Email).Msg("Login result discarded")
		http.Redirect(w, r, "/login", http.StatusFound)
	case errors.Is(err, session.ErrCredential):
		render(w, http.StatusUnauthorized, loginTemplate, map[string]any{"Message": "Invalid email or password.", "Email": creds.Email})
	default:
		log.Error().Err(err).Msg("Login failed")
		render(w, http.StatusBadGateway, loginTemplate, map[string]any{"Message": "The server could not be reached. Try again shortly.", "Email": creds.Email})
	}
}

func (h *consoleHandlers) logout(w http.ResponseWriter, r *http.Request) {
	h.store.Logout(r.Context())
	http.Redirect(w, r, "/login?error_code="+string(broadcast.ReasonUserInitiated), http.StatusFound)
}

func (h *consoleHandlers) unauthorized(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusForbidden, unauthorizedTemplate, nil)
}

func (h *consoleHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := guard.SessionFromContext(r.Context())
	render(w, http.StatusOK, dashboardTemplate, map[string]any{"User": sess.User})
}

func (h *consoleHandlers) admin(w http.ResponseWriter, r *http.Request) {
	sess, _ := guard.SessionFromContext(r.Context())
	due, _ := h.store.NextRefresh()
	render(w, http.StatusOK, adminTemplate, map[string]any{
		"User":          sess.User,
		"Generation":    h.store.Generation(),
		"State":         h.store.State().String(),
		"NextRefresh":   due,
		"IdleRemaining": h.store.IdleRemaining().Round(time.Second),
	})
}

func (h *consoleHandlers) account(w http.ResponseWriter, r *http.Request) {
	sess, _ := guard.SessionFromContext(r.Context())
	var notice string
	if r.URL.Query().Get("updated") == "profile" {
		notice = "Profile updated."
	}
	render(w, http.StatusOK, accountTemplate, map[string]any{"User": sess.User, "Notice": notice, "Error": ""})
}

func (h *consoleHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	var update session.ProfileUpdate
	for field, dst := range map[string]**string{
		"first_name": &update.FirstName,
		"last_name":  &update.LastName,
		"email":      &update.Email,
		"phone":      &update.Phone,
	} {
		if v := strings.TrimSpace(r.PostFormValue(field)); v != "" {
			*dst = &v
		}
	}

	_, err := h.store.UpdateProfile(r.Context(), update)
	switch {
	case err == nil:
		http.Redirect(w, r, "/account?updated=profile", http.StatusFound)
	case errors.Is(err, session.ErrValidation):
		h.accountError(w, r, http.StatusBadRequest, err)
	default:
		h.accountFailure(w, r, err)
	}
}

func (h *consoleHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	err := h.store.ChangePassword(r.Context(), session.PasswordChange{
		OldPassword:     r.PostFormValue("old_password"),
		NewPassword:     r.PostFormValue("new_password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	})
	switch {
	case err == nil:
		http.Redirect(w, r, "/login?error_code=password_changed", http.StatusFound)
	case errors.Is(err, session.ErrValidation):
		h.accountError(w, r, http.StatusBadRequest, err)
	default:
		h.accountFailure(w, r, err)
	}
}

func (h *consoleHandlers) accountError(w http.ResponseWriter, r *http.Request, status int, err error) {
	sess, _ := guard.SessionFromContext(r.Context())
	render(w, status, accountTemplate, map[string]any{"User": sess.User, "Notice": "", "Error": err.Error()})
}

// accountFailure handles errors that are not about the submitted form.
func (h *consoleHandlers) accountFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrSessionRaceDiscarded), !h.store.IsAuthenticated():
		log.Debug().Err(err).Msg("Account change ended with the session")
		code := string(h.reason())
		if code == "" {
			code = "unauthenticated"
		}
		http.Redirect(w, r, "/login?error_code="+code, http.StatusFound)
	default:
		log.Error().Err(err).Msg("Account change failed")
		h.accountError(w, r, http.StatusBadGateway, errors.New("the server could not be reached, try again shortly"))
	}
}

type sessionResponse struct {
	Authenticated        bool              `json:"authenticated"`
	State                string            `json:"state"`
	User                 *session.Identity `json:"user,omitempty"`
	IdleRemainingSeconds int64             `json:"idle_remaining_seconds"`
	NextRefresh          *time.Time        `json:"next_refresh,omitempty"`
	LogoutReason         string            `json:"logout_reason,omitempty"`
}

// sessionState is polled by open pages. It deliberately does not count as
// activity.
func (h *consoleHandlers) sessionState(w http.ResponseWriter, r *http.Request) {
	sess := h.store.Session()
	resp := sessionResponse{
		Authenticated:        sess.Authenticated,
		State:                h.store.State().String(),
		User:                 sess.User,
		IdleRemainingSeconds: int64(h.store.IdleRemaining().Seconds()),
	}
	if due, ok := h.store.NextRefresh(); ok {
		resp.NextRefresh = &due
	}
	if !sess.Authenticated {
		resp.LogoutReason = string(h.reason())
	}
	writeJSON(w, http.StatusOK, resp)
}

// branches proxies the branch list through the resource client, which adds
// the bearer token and turns a 401 into a forced logout.
func (h *consoleHandlers) branches(w http.ResponseWriter, r *http.Request) {
	if !h.store.IsAuthenticated() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.branchesURL, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.resource.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Branch request failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend unavailable"})
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// isAPIRoute returns true if the path is an API route that also needs CORS
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Str("template", tmpl.Name()).Msg("Failed to render page")
	}
}
