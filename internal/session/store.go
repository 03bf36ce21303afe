package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/activity"
	"github.com/wolfeidau/timax-console/internal/broadcast"
	"github.com/wolfeidau/timax-console/internal/clock"
	"github.com/wolfeidau/timax-console/internal/credentials"
	"github.com/wolfeidau/timax-console/internal/telemetry"
)

// Dependencies are the collaborators a Store coordinates.
type Dependencies struct {
	Backend     AuthBackend
	Storage     credentials.Storage
	Broadcaster *broadcast.Broadcaster
	Activity    activity.Source
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

type subscriber struct {
	id string
	fn func(Session)
}

// Store owns the session state machine. It is the only writer of the
// session and of the stored credential pair.
type Store struct {
	cfg         Config
	backend     AuthBackend
	storage     credentials.Storage
	broadcaster *broadcast.Broadcaster
	clock       clock.Clock
	refresh     *RefreshScheduler
	idle        *InactivityMonitor
	metrics     *telemetry.Metrics

	mu         sync.Mutex
	state      State
	session    Session
	generation uint64

	// notifyMu serialises subscriber delivery so the last delivery always
	// carries the latest session.
	notifyMu    sync.Mutex
	subMu       sync.Mutex
	subscribers []subscriber
}

// NewStore creates an unauthenticated Store and binds it as the teardown
// consumer of deps.Broadcaster.
func NewStore(cfg Config, deps Dependencies) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if deps.Backend == nil || deps.Storage == nil || deps.Broadcaster == nil || deps.Activity == nil {
		return nil, errors.New("backend, storage, broadcaster and activity source are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	s := &Store{
		cfg:         cfg,
		backend:     deps.Backend,
		storage:     deps.Storage,
		broadcaster: deps.Broadcaster,
		clock:       deps.Clock,
		metrics:     telemetry.GetMetrics(),
	}
	s.refresh = NewRefreshScheduler(deps.Clock, s.onRefreshDue)
	s.idle = NewInactivityMonitor(deps.Clock, deps.Activity, cfg.IdleTimeout, cfg.IdleDebounce, s.onIdle)

	deps.Broadcaster.Handle(func(ctx context.Context, evt broadcast.Event) {
		if !s.teardown(ctx, evt.Generation, evt.Reason) {
			s.metrics.RecordStaleResult(ctx, string(evt.Reason))
		}
	})

	return s, nil
}

// Login authenticates against the backend. It is valid while unauthenticated
// or while a previous login is still in flight, which it supersedes.
func (s *Store) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	s.mu.Lock()
	if s.state == StateAuthenticated || s.state == StateRefreshing {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: login while %s", ErrInvalidState, state)
	}
	s.state = StateAuthenticating
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	log.Debug().Str("email", creds.Email).Uint64("generation", gen).Msg("Login started")

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.NetworkTimeout)
	res, err := s.backend.Login(callCtx, creds)
	cancel()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.metrics.RecordStaleResult(ctx, "login")
		log.Debug().Uint64("generation", gen).Msg("Discarding stale login result")
		return nil, ErrSessionRaceDiscarded
	}
	if err == nil && (res == nil || res.Identity == nil) {
		err = fmt.Errorf("%w: login response missing identity", ErrNetwork)
	}
	if err != nil {
		s.state = StateUnauthenticated
		s.mu.Unlock()
		s.metrics.RecordLogin(ctx, telemetry.ResultFailure)
		return nil, classifyLoginError(err)
	}
	if err := s.storage.Set(res.Tokens); err != nil {
		s.state = StateUnauthenticated
		s.mu.Unlock()
		s.metrics.RecordLogin(ctx, telemetry.ResultFailure)
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	identity := res.Identity.Clone()
	s.establishLocked(gen, identity, s.lifetime(res.Tokens, res.ExpiresIn))
	s.mu.Unlock()

	s.metrics.RecordLogin(ctx, telemetry.ResultSuccess)
	log.Info().
		Str("user", identity.Email).
		Str("role", identity.Role).
		Uint64("generation", gen).
		Msg("Login succeeded")

	s.notify()
	return identity.Clone(), nil
}

// Restore re-validates a persisted credential pair at startup.
func (s *Store) Restore(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	if s.state != StateUnauthenticated {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: restore while %s", ErrInvalidState, state)
	}
	pair, err := s.storage.Get()
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	s.state = StateAuthenticating
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	log.Debug().Str("access", credentials.Fingerprint(pair.AccessToken)).Msg("Restoring session")

	res, err := s.currentIdentity(ctx, *pair)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.metrics.RecordStaleResult(ctx, "restore")
		return nil, ErrSessionRaceDiscarded
	}
	if err != nil {
		s.mu.Unlock()
		s.metrics.RecordRefresh(ctx, telemetry.ResultFailure)
		log.Info().Err(err).Msg("Stored session rejected")
		s.teardown(ctx, gen, broadcast.ReasonTokenExpired)
		return nil, err
	}
	tokens := *pair
	if res.Tokens != nil {
		if err := s.storage.Set(*res.Tokens); err != nil {
			s.mu.Unlock()
			s.teardown(ctx, gen, broadcast.ReasonTokenExpired)
			return nil, fmt.Errorf("failed to store credentials: %w", err)
		}
		tokens = *res.Tokens
	}

	identity := res.Identity.Clone()
	s.establishLocked(gen, identity, s.lifetime(tokens, res.ExpiresIn))
	s.mu.Unlock()

	s.metrics.RecordRefresh(ctx, telemetry.ResultSuccess)
	log.Info().Str("user", identity.Email).Uint64("generation", gen).Msg("Session restored")

	s.notify()
	return identity.Clone(), nil
}

// RefreshIdentity re-fetches the identity with the stored pair. On failure
// the session is torn down with reason tokenExpired and the error returned.
func (s *Store) RefreshIdentity(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: refresh while %s", ErrInvalidState, state)
	}
	gen := s.generation
	s.mu.Unlock()

	return s.refreshIdentity(ctx, gen)
}

// Logout tears the session down. It is idempotent and never fails; the
// backend is notified on a best effort basis after local state is cleared.
func (s *Store) Logout(ctx context.Context) {
	if s.broadcaster.Emit(ctx, broadcast.ReasonUserInitiated) {
		return
	}
	// nothing was armed: no session, or a login still in flight
	s.teardown(ctx, anyGeneration, broadcast.ReasonUserInitiated)
}

// Session returns a copy of the current session.
func (s *Store) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{User: s.session.User.Clone(), Authenticated: s.session.Authenticated}
}

// IsAuthenticated reports whether a user is logged in.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Authenticated
}

// CurrentRole returns the role of the logged in user.
func (s *Store) CurrentRole() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Authenticated || s.session.User == nil || s.session.User.Role == "" {
		return "", false
	}
	return s.session.User.Role, true
}

// State returns the current state machine position.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the session generation counter.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// IdleRemaining returns the time left before an idle logout.
func (s *Store) IdleRemaining() time.Duration {
	return s.idle.Remaining()
}

// NextRefresh returns when the pending refresh fires.
func (s *Store) NextRefresh() (time.Time, bool) {
	return s.refresh.Due()
}

// Subscribe registers fn to be called with the new session after every
// observable change. fn must not call Login, Logout or Restore synchronously.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	id := uuid.NewString()

	s.subMu.Lock()
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Close stops the timers and detaches from the broadcaster. Stored
// credentials are kept so a later process can Restore them.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh.Cancel()
	s.idle.Stop()
	s.broadcaster.Disarm()
	s.broadcaster.Handle(nil)
	s.generation++
}

func (s *Store) establishLocked(gen uint64, identity *Identity, lifetime time.Duration) {
	s.session = Session{User: identity, Authenticated: true}
	s.state = StateAuthenticated
	s.refresh.Schedule(gen, s.cfg.refreshInterval(lifetime))
	s.idle.Start(gen)
	s.broadcaster.ArmFor(gen)
}

func (s *Store) refreshIdentity(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if gen != s.generation || s.state != StateAuthenticated {
		s.mu.Unlock()
		return ErrSessionRaceDiscarded
	}
	s.state = StateRefreshing
	s.mu.Unlock()

	pair, err := s.storage.Get()
	if err != nil {
		s.metrics.RecordRefresh(ctx, telemetry.ResultFailure)
		s.forceLogout(ctx, gen, broadcast.ReasonTokenExpired)
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	}

	res, err := s.currentIdentity(ctx, *pair)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.metrics.RecordStaleResult(ctx, "refresh")
		log.Debug().Uint64("generation", gen).Msg("Discarding stale refresh result")
		return ErrSessionRaceDiscarded
	}
	if err != nil {
		s.mu.Unlock()
		s.metrics.RecordRefresh(ctx, telemetry.ResultFailure)
		log.Warn().Err(err).Uint64("generation", gen).Msg("Identity refresh failed")
		s.forceLogout(ctx, gen, broadcast.ReasonTokenExpired)
		return err
	}

	tokens := *pair
	if res.Tokens != nil {
		if err := s.storage.Set(*res.Tokens); err != nil {
			s.mu.Unlock()
			s.forceLogout(ctx, gen, broadcast.ReasonTokenExpired)
			return fmt.Errorf("failed to store credentials: %w", err)
		}
		tokens = *res.Tokens
	}

	s.session.User = res.Identity.Clone()
	s.state = StateAuthenticated
	s.refresh.Schedule(gen, s.cfg.refreshInterval(s.lifetime(tokens, res.ExpiresIn)))
	s.mu.Unlock()

	s.metrics.RecordRefresh(ctx, telemetry.ResultSuccess)
	log.Debug().Uint64("generation", gen).Bool("rotated", res.Tokens != nil).Msg("Identity refreshed")

	s.notify()
	return nil
}

func (s *Store) currentIdentity(ctx context.Context, pair credentials.Pair) (*IdentityResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.NetworkTimeout)
	defer cancel()

	res, err := s.backend.CurrentIdentity(callCtx, pair)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Identity == nil {
		return nil, fmt.Errorf("%w: identity response missing user", ErrNetwork)
	}
	return res, nil
}

func (s *Store) onRefreshDue(gen uint64) {
	if err := s.refreshIdentity(context.Background(), gen); err != nil && !errors.Is(err, ErrSessionRaceDiscarded) {
		log.Debug().Err(err).Msg("Scheduled refresh ended the session")
	}
}

func (s *Store) onIdle(gen uint64) {
	s.forceLogout(context.Background(), gen, broadcast.ReasonInactivity)
}

// forceLogout routes a background failure through the broadcaster so every
// observer sees exactly one event. The emission is scoped to gen, so a late
// failure from an earlier session cannot end a newer one.
func (s *Store) forceLogout(ctx context.Context, gen uint64, reason broadcast.Reason) {
	if s.broadcaster.EmitFor(ctx, gen, reason) {
		return
	}
	// not armed for gen: that session already ended or was replaced
	if !s.teardown(ctx, gen, reason) {
		s.metrics.RecordStaleResult(ctx, string(reason))
	}
}

// anyGeneration scopes a teardown to whichever session is current.
const anyGeneration uint64 = 0

// teardown is the single convergence point for every logout path. Timers are
// cancelled before anything else and before any network call. A non-zero gen
// limits the teardown to that session generation; it reports false when the
// generation has already moved on.
func (s *Store) teardown(ctx context.Context, gen uint64, reason broadcast.Reason) bool {
	s.mu.Lock()
	if gen != anyGeneration && gen != s.generation {
		s.mu.Unlock()
		log.Debug().Str("reason", string(reason)).Uint64("generation", gen).Msg("Ignoring teardown for a previous session")
		return false
	}
	s.refresh.Cancel()
	s.idle.Stop()
	s.broadcaster.Disarm()

	wasAuthenticated := s.session.Authenticated
	s.generation++
	next := s.generation

	pair, err := s.storage.Get()
	if err != nil {
		pair = nil
	}
	if err := s.storage.Clear(); err != nil {
		log.Error().Err(err).Msg("Failed to clear stored credentials")
	}
	s.session = Session{}
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if wasAuthenticated {
		s.metrics.RecordTeardown(ctx, string(reason))
		log.Info().Str("reason", string(reason)).Uint64("generation", next).Msg("Session ended")
		s.notify()
	}

	if pair != nil && notifiesBackend(reason) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.NetworkTimeout)
		defer cancel()
		if err := s.backend.Logout(callCtx, *pair); err != nil {
			log.Debug().Err(err).Msg("Backend logout failed, ignoring")
		}
	}
	return true
}

// notifiesBackend reports whether the backend should be told about a teardown.
// Rejected or expired tokens are already dead server side.
func notifiesBackend(reason broadcast.Reason) bool {
	return reason == broadcast.ReasonUserInitiated || reason == broadcast.ReasonInactivity
}

func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	current := s.Session()

	s.subMu.Lock()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(current)
	}
}

// lifetime picks the access token lifetime: the backend's expires_in, then
// the token's exp claim, then the configured default.
func (s *Store) lifetime(pair credentials.Pair, expiresIn time.Duration) time.Duration {
	if expiresIn > 0 {
		return expiresIn
	}
	if exp, err := credentials.ExpiresAt(pair.AccessToken); err == nil {
		if remaining := exp.Sub(s.clock.Now()); remaining > 0 {
			return remaining
		}
	}
	return s.cfg.AccessTokenLifetime
}

func classifyLoginError(err error) error {
	if errors.Is(err, ErrCredential) || errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
