package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfeidau/timax-console/internal/credentials"
	"github.com/wolfeidau/timax-console/internal/session"
)

type profileResponse struct {
	Message string            `json:"message"`
	User    *session.Identity `json:"user"`
}

// ChangePassword replaces the user's password. The backend blacklists every
// refresh token of the user when this succeeds.
func (c *AuthClient) ChangePassword(ctx context.Context, pair credentials.Pair, change session.PasswordChange) error {
	ctx, span := c.tracer.Start(ctx, "auth.ChangePassword")
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, "change_password/", pair.AccessToken, change)
	if err != nil {
		return spanError(span, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := accountError("change password", resp); err != nil {
		return spanError(span, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// UpdateProfile sends a partial profile update and returns the updated user.
func (c *AuthClient) UpdateProfile(ctx context.Context, pair credentials.Pair, update session.ProfileUpdate) (*session.Identity, error) {
	ctx, span := c.tracer.Start(ctx, "auth.UpdateProfile")
	defer span.End()

	resp, err := c.do(ctx, http.MethodPatch, "update_profile/", pair.AccessToken, update)
	if err != nil {
		return nil, spanError(span, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := accountError("update profile", resp); err != nil {
		return nil, spanError(span, err)
	}

	var pr profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, spanError(span, fmt.Errorf("%w: failed to decode profile response: %w", session.ErrNetwork, err))
	}
	if pr.User == nil {
		return nil, spanError(span, fmt.Errorf("%w: profile response missing user", session.ErrNetwork))
	}
	return pr.User, nil
}

// accountError maps the status of an authenticated account call.
func accountError(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", session.ErrValidation, apiMessage(resp))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", session.ErrTokenExpired, apiMessage(resp))
	default:
		return fmt.Errorf("%w: %s returned HTTP %d", session.ErrNetwork, op, resp.StatusCode)
	}
}
