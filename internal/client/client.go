package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/wolfeidau/timax-console/internal/logger"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	Debug     bool
	// CacheDir enables a disk backed response cache for the resource client.
	CacheDir string
	// RetryMaxElapsed bounds retries of transient identity check failures.
	RetryMaxElapsed time.Duration
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL:       "http://localhost:8000",
		Timeout:         30 * time.Second,
		RetryMaxElapsed: 10 * time.Second,
	}
}

// Validate checks the server URL is absolute and the timeouts are usable.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server url %q must be an absolute URL", c.ServerURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be greater than 0"))
	}
	if c.RetryMaxElapsed < 0 {
		errs = append(errs, errors.New("retry max elapsed must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) authURL(endpoint string) string {
	return strings.TrimSuffix(c.ServerURL, "/") + "/api/v1/auth/" + endpoint
}

// newBaseTransport is shared by every client: gzip aware, with each call logged.
func newBaseTransport() http.RoundTripper {
	return logger.NewRequestLogger(gzhttp.Transport(http.DefaultTransport))
}
