package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/wolfeidau/timax-console/internal/broadcast"
	"github.com/wolfeidau/timax-console/internal/credentials"
	"github.com/wolfeidau/timax-console/internal/logger"
	"github.com/wolfeidau/timax-console/internal/telemetry"
)

// ErrNoCredentials is returned for resource requests made without a stored pair.
var ErrNoCredentials = errors.New("no stored credentials")

// StorageTokenSource reads the access token from credential storage on every
// request. It never writes: rotation belongs to the session store.
type StorageTokenSource struct {
	Storage credentials.Storage
}

func (s StorageTokenSource) Token() (*oauth2.Token, error) {
	pair, err := s.Storage.Get()
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return &oauth2.Token{AccessToken: pair.AccessToken, TokenType: "Bearer"}, nil
}

// RejectionTransport turns an HTTP 401 from the backend into a
// serverRejected forced logout. It only emits; the session store does the
// rest.
type RejectionTransport struct {
	Base        http.RoundTripper
	Broadcaster *broadcast.Broadcaster
}

func (t *RejectionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		ctx := req.Context()
		telemetry.GetMetrics().RecordRejected(ctx, req.URL.Path)
		log.Warn().Str("path", req.URL.Path).Msg("Backend rejected credentials")

		// detach so a cancelled request cannot interrupt teardown
		t.Broadcaster.Emit(context.WithoutCancel(ctx), broadcast.ReasonServerRejected)
	}

	return resp, nil
}

// NewResourceClient returns the HTTP client used for every authenticated
// backend call outside the auth endpoints. Cached responses are purged
// whenever a forced logout is broadcast.
func NewResourceClient(cfg Config, storage credentials.Storage, b *broadcast.Broadcaster) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	cache := NewCache(cfg.CacheDir)
	b.Subscribe(func(ctx context.Context, evt broadcast.Event) {
		n := cache.Purge()
		log.Debug().Int("entries", n).Str("reason", string(evt.Reason)).Msg("Response cache purged")
	})

	var rt http.RoundTripper = gzhttp.Transport(http.DefaultTransport)
	rt = NewCachingTransport(cache, rt)
	rt = &RejectionTransport{Base: rt, Broadcaster: b}
	rt = &oauth2.Transport{Source: StorageTokenSource{Storage: storage}, Base: rt}
	rt = logger.NewRequestLogger(rt)

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: rt,
	}, nil
}
