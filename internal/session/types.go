package session

import (
	"context"
	"time"

	"github.com/wolfeidau/timax-console/internal/credentials"
)

// State is a position in the session state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Roles issued by the backend.
const (
	RoleAdmin          = "ADMIN"
	RoleManager        = "MANAGER"
	RoleSalesAgent     = "SALES_AGENT"
	RoleTechnician     = "TECHNICIAN"
	RoleInventoryClerk = "INVENTORY_CLERK"
	RoleAccountant     = "ACCOUNTANT"
)

// Branch is the site a user is attached to.
type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Identity is the authenticated user as reported by the backend.
type Identity struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	FullName  string  `json:"full_name"`
	Phone     string  `json:"phone,omitempty"`
	Role      string  `json:"role"`
	Branch    *Branch `json:"branch,omitempty"`
	IsActive  bool    `json:"is_active"`
}

// Clone returns a deep copy so callers cannot mutate store state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Branch != nil {
		b := *i.Branch
		c.Branch = &b
	}
	return &c
}

// DisplayName returns the full name, falling back to the email.
func (i *Identity) DisplayName() string {
	if i.FullName != "" {
		return i.FullName
	}
	return i.Email
}

// Session is the externally visible session record.
type Session struct {
	User          *Identity
	Authenticated bool
}

// Credentials are what the user types into the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned by a successful backend login.
type LoginResult struct {
	Tokens   credentials.Pair
	Identity *Identity
	// ExpiresIn is the access token lifetime if the backend reported one.
	ExpiresIn time.Duration
}

// IdentityResult is returned by a successful identity re-validation.
type IdentityResult struct {
	Identity *Identity
	// Tokens is set when the backend rotated the pair while re-validating.
	Tokens    *credentials.Pair
	ExpiresIn time.Duration
}

// PasswordChange is a request to replace the current user's password.
type PasswordChange struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ProfileUpdate is a partial update of the current user's profile. Nil
// fields are left unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil && u.Phone == nil
}

// AuthBackend is the network collaborator issuing and validating tokens.
type AuthBackend interface {
	// Login exchanges credentials for a token pair. Errors wrap ErrCredential or ErrNetwork.
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	// CurrentIdentity re-validates the pair, refreshing it server side if the
	// access token is near expiry. Errors wrap ErrTokenExpired or ErrNetwork.
	CurrentIdentity(ctx context.Context, pair credentials.Pair) (*IdentityResult, error)
	// Logout is best effort; callers ignore its error.
	Logout(ctx context.Context, pair credentials.Pair) error
	// ChangePassword replaces the password. On success the backend revokes
	// every refresh token of the user. Errors wrap ErrValidation,
	// ErrTokenExpired or ErrNetwork.
	ChangePassword(ctx context.Context, pair credentials.Pair, change PasswordChange) error
	// UpdateProfile applies update and returns the resulting identity.
	// Errors wrap ErrValidation, ErrTokenExpired or ErrNetwork.
	UpdateProfile(ctx context.Context, pair credentials.Pair, update ProfileUpdate) (*Identity, error)
}
