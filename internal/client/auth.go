package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfeidau/timax-console/internal/credentials"
	"github.com/wolfeidau/timax-console/internal/session"
)

const tracerName = "github.com/wolfeidau/timax-console/internal/client"

var _ session.AuthBackend = (*AuthClient)(nil)

// AuthClient talks to the backend's /api/v1/auth/ endpoints.
type AuthClient struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewAuthClient creates a client for the auth endpoints.
func NewAuthClient(cfg Config) (*AuthClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	return &AuthClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newBaseTransport(),
		},
		tracer: otel.Tracer(tracerName),
	}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	User         *session.Identity `json:"user"`
	ExpiresIn    float64           `json:"expires_in"`
}

func (t tokenResponse) pair() credentials.Pair {
	return credentials.Pair{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

func (t tokenResponse) expiresIn() time.Duration {
	return time.Duration(t.ExpiresIn * float64(time.Second))
}

// Login exchanges an email and password for a credential pair.
func (c *AuthClient) Login(ctx context.Context, creds session.Credentials) (*session.LoginResult, error) {
	ctx, span := c.tracer.Start(ctx, "auth.Login")
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, "login/", "", loginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return nil, spanError(span, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, spanError(span, fmt.Errorf("%w: %s", session.ErrCredential, apiMessage(resp)))
	default:
		return nil, spanError(span, fmt.Errorf("%w: login returned HTTP %d", session.ErrNetwork, resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, spanError(span, fmt.Errorf("%w: failed to decode login response: %w", session.ErrNetwork, err))
	}
	if !tr.pair().Complete() || tr.User == nil {
		return nil, spanError(span, fmt.Errorf("%w: login response missing tokens or user", session.ErrNetwork))
	}

	return &session.LoginResult{
		Tokens:    tr.pair(),
		Identity:  tr.User,
		ExpiresIn: tr.expiresIn(),
	}, nil
}

// CurrentIdentity fetches the user behind pair. When the access token is
// rejected the refresh token is exchanged and the rotated pair returned.
// Transient failures are retried with exponential backoff.
func (c *AuthClient) CurrentIdentity(ctx context.Context, pair credentials.Pair) (*session.IdentityResult, error) {
	ctx, span := c.tracer.Start(ctx, "auth.CurrentIdentity")
	defer span.End()

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("next", next).Msg("Identity check failed, retrying")
		}),
	}
	if c.cfg.RetryMaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.cfg.RetryMaxElapsed))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}

	res, err := backoff.Retry(ctx, func() (*session.IdentityResult, error) {
		return c.currentIdentity(ctx, pair)
	}, opts...)
	if err != nil {
		return nil, spanError(span, err)
	}
	return res, nil
}

func (c *AuthClient) currentIdentity(ctx context.Context, pair credentials.Pair) (*session.IdentityResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "user/", pair.AccessToken, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var identity session.Identity
		if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: failed to decode user: %w", session.ErrNetwork, err))
		}
		return &session.IdentityResult{Identity: &identity}, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		log.Debug().Str("access", credentials.Fingerprint(pair.AccessToken)).Msg("Access token rejected, refreshing")
		return c.refresh(ctx, pair.RefreshToken)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: user returned HTTP %d", session.ErrNetwork, resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("%w: user returned HTTP %d", session.ErrNetwork, resp.StatusCode))
	}
}

func (c *AuthClient) refresh(ctx context.Context, refreshToken string) (*session.IdentityResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "refresh/", "", refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", session.ErrTokenExpired, apiMessage(resp)))
	default:
		return nil, fmt.Errorf("%w: refresh returned HTTP %d", session.ErrNetwork, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: failed to decode refresh response: %w", session.ErrNetwork, err))
	}
	if !tr.pair().Complete() || tr.User == nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: refresh response missing tokens or user", session.ErrTokenExpired))
	}

	tokens := tr.pair()
	return &session.IdentityResult{
		Identity:  tr.User,
		Tokens:    &tokens,
		ExpiresIn: tr.expiresIn(),
	}, nil
}

// Logout asks the backend to blacklist the refresh token.
func (c *AuthClient) Logout(ctx context.Context, pair credentials.Pair) error {
	ctx, span := c.tracer.Start(ctx, "auth.Logout")
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, "logout/", pair.AccessToken, refreshRequest{RefreshToken: pair.RefreshToken})
	if err != nil {
		return spanError(span, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return spanError(span, fmt.Errorf("%w: logout returned HTTP %d", session.ErrNetwork, resp.StatusCode))
	}
	return nil
}

func (c *AuthClient) do(ctx context.Context, method, endpoint, accessToken string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.authURL(endpoint), reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %w", session.ErrNetwork, err))
		}
		return nil, fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}
	return resp, nil
}

// apiMessage extracts the human readable part of an error body. The backend
// uses detail, error or non_field_errors depending on the view, and a list
// of messages per field for validation failures.
func apiMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	for _, key := range []string{"detail", "error"} {
		var msg string
		if err := json.Unmarshal(body[key], &msg); err == nil && msg != "" {
			return msg
		}
	}

	var msgs []string
	if err := json.Unmarshal(body["non_field_errors"], &msgs); err == nil && len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}

	var fields []string
	for _, key := range slices.Sorted(maps.Keys(body)) {
		var errs []string
		if err := json.Unmarshal(body[key], &errs); err == nil && len(errs) > 0 {
			fields = append(fields, key+": "+strings.Join(errs, " "))
		}
	}
	if len(fields) > 0 {
		return strings.Join(fields, "; ")
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
