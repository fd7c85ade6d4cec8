package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/krypto"
)

// State is the lifecycle state of an account.
type State int

const (
	StateUnverified State = iota
	StateActive
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Account is a registered identity.
//
// Tokens are only ever stored as digests, the plaintext tokens are
// handed to the Notifier and forgotten.
type Account struct {
	ID           uuid.UUID
	Name         string
	Email        email.Address
	Phone        Phone
	PasswordHash krypto.Argon2Hash
	Enabled      bool
	Verified     bool

	// VerificationToken is set while the account is unverified.
	VerificationToken *krypto.TokenDigest

	// ResetToken and ResetTokenExpiry are set between a forgot password
	// request and the consumption (or expiry) of the reset token.
	ResetToken       *krypto.TokenDigest
	ResetTokenExpiry *time.Time

	// Version is incremented by the store on every update.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// State derives the lifecycle state from the account flags.
func (a *Account) State() State {
	if !a.Verified {
		return StateUnverified
	}

	if !a.Enabled {
		return StateDisabled
	}

	return StateActive
}

// Validate checks the invariants every persisted account must hold.
func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidAccount)
	}

	if !a.Verified && a.VerificationToken == nil {
		return fmt.Errorf("%w: unverified account without verification token", ErrInvalidAccount)
	}

	if a.Verified && a.VerificationToken != nil {
		return fmt.Errorf("%w: verified account with verification token", ErrInvalidAccount)
	}

	if !a.Verified && !a.Enabled {
		return fmt.Errorf("%w: unverified account can't be disabled", ErrInvalidAccount)
	}

	if (a.ResetToken == nil) != (a.ResetTokenExpiry == nil) {
		return fmt.Errorf("%w: reset token and expiry must be set together", ErrInvalidAccount)
	}

	return nil
}
