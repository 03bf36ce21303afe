package session

import "errors"

var (
	// ErrCredential is returned when the backend rejects the supplied login.
	ErrCredential = errors.New("invalid credentials")

	// ErrNetwork is returned for transient transport or server failures.
	ErrNetwork = errors.New("auth backend unavailable")

	// ErrTokenExpired is returned when the backend rejects the stored credentials.
	ErrTokenExpired = errors.New("session token expired")

	// ErrSessionRaceDiscarded is returned when an async result arrived for a
	// session generation that no longer exists.
	ErrSessionRaceDiscarded = errors.New("result discarded for stale session")

	// ErrValidation is returned when the backend rejects the content of a
	// profile or password change.
	ErrValidation = errors.New("request rejected")

	// ErrInvalidState is returned when an operation is not valid in the current state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrNoSession is returned by Restore when there are no stored credentials.
	ErrNoSession = errors.New("no stored session")
)
