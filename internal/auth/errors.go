package auth

import "errors"

var (
	ErrDuplicateAccount   = errors.New("duplicate account")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountNotVerified = errors.New("account not verified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidTransition  = errors.New("invalid account state transition")
	ErrInvalidAccount     = errors.New("invalid account")

	// ErrTransport wraps failures of the Notifier.
	ErrTransport = errors.New("transport error")
	// ErrStore wraps failures of the Store. These are always fatal to
	// the operation and should not be retried silently.
	ErrStore = errors.New("store error")
)
