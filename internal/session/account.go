package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/broadcast"
	"github.com/wolfeidau/timax-console/internal/credentials"
)

// ChangePassword replaces the user's password. The backend revokes every
// refresh token of the user on success, so the session is ended locally
// rather than left to fail at the next refresh.
func (s *Store) ChangePassword(ctx context.Context, change PasswordChange) error {
	switch {
	case change.OldPassword == "" || change.NewPassword == "":
		return fmt.Errorf("%w: old and new password are required", ErrValidation)
	case change.NewPassword != change.ConfirmPassword:
		return fmt.Errorf("%w: new passwords don't match", ErrValidation)
	}

	gen, pair, err := s.authenticatedPair("change password")
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.NetworkTimeout)
	err = s.backend.ChangePassword(callCtx, pair, change)
	cancel()

	if s.Generation() != gen {
		s.metrics.RecordStaleResult(ctx, "change_password")
		log.Debug().Uint64("generation", gen).Msg("Discarding stale password change result")
		return ErrSessionRaceDiscarded
	}

	switch {
	case err == nil:
		log.Info().Uint64("generation", gen).Msg("Password changed, ending session")
		s.forceLogout(ctx, gen, broadcast.ReasonUserInitiated)
		return nil
	case errors.Is(err, ErrTokenExpired):
		s.forceLogout(ctx, gen, broadcast.ReasonTokenExpired)
		return err
	default:
		return err
	}
}

// UpdateProfile applies update to the current user and replaces the session
// identity in place with the backend's answer.
func (s *Store) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Identity, error) {
	if update.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	gen, pair, err := s.authenticatedPair("update profile")
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.NetworkTimeout)
	identity, err := s.backend.UpdateProfile(callCtx, pair, update)
	cancel()

	s.mu.Lock()
	if gen != s.generation || !s.session.Authenticated {
		s.mu.Unlock()
		s.metrics.RecordStaleResult(ctx, "update_profile")
		log.Debug().Uint64("generation", gen).Msg("Discarding stale profile update result")
		return nil, ErrSessionRaceDiscarded
	}
	if err == nil && identity == nil {
		err = fmt.Errorf("%w: profile response missing user", ErrNetwork)
	}
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrTokenExpired) {
			s.forceLogout(ctx, gen, broadcast.ReasonTokenExpired)
		}
		return nil, err
	}
	s.session.User = identity.Clone()
	s.mu.Unlock()

	log.Info().Str("user", identity.Email).Uint64("generation", gen).Msg("Profile updated")

	s.notify()
	return identity.Clone(), nil
}

// authenticatedPair captures the generation and stored pair for a call made
// on behalf of the current session.
func (s *Store) authenticatedPair(op string) (uint64, credentials.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Authenticated {
		return 0, credentials.Pair{}, fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s.state)
	}
	pair, err := s.storage.Get()
	if err != nil {
		return 0, credentials.Pair{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	return s.generation, *pair, nil
}
