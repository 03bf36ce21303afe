package session

import (
	"errors"
	"fmt"
	"time"
)

// Config controls the session timers.
type Config struct {
	// AccessTokenLifetime is used when neither the backend nor the token reports an expiry.
	AccessTokenLifetime time.Duration
	// RefreshMargin is how long before expiry the pair is re-validated.
	RefreshMargin time.Duration
	// MinRefreshInterval bounds the refresh cadence for very short lived tokens.
	MinRefreshInterval time.Duration
	// IdleTimeout is the allowed time without user activity.
	IdleTimeout time.Duration
	// IdleDebounce coalesces rapid activity into a single timer rearm.
	IdleDebounce time.Duration
	// NetworkTimeout bounds every backend call.
	NetworkTimeout time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		AccessTokenLifetime: 30 * time.Minute,
		RefreshMargin:       5 * time.Minute,
		MinRefreshInterval:  30 * time.Second,
		IdleTimeout:         30 * time.Minute,
		IdleDebounce:        time.Second,
		NetworkTimeout:      15 * time.Second,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"access token lifetime", c.AccessTokenLifetime},
		{"min refresh interval", c.MinRefreshInterval},
		{"idle timeout", c.IdleTimeout},
		{"network timeout", c.NetworkTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be greater than 0", p.name))
		}
	}
	if c.RefreshMargin < 0 {
		errs = append(errs, errors.New("refresh margin must not be negative"))
	}
	if c.IdleDebounce < 0 {
		errs = append(errs, errors.New("idle debounce must not be negative"))
	}
	if c.RefreshMargin >= c.AccessTokenLifetime && c.AccessTokenLifetime > 0 {
		errs = append(errs, errors.New("refresh margin must be shorter than the access token lifetime"))
	}
	return errors.Join(errs...)
}

// refreshInterval converts a token lifetime into the delay before re-validation.
func (c Config) refreshInterval(lifetime time.Duration) time.Duration {
	interval := lifetime - c.RefreshMargin
	if interval < c.MinRefreshInterval {
		return c.MinRefreshInterval
	}
	return interval
}
