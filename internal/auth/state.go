package auth

import (
	"fmt"
	"time"

	"github.com/willemschots/webauth/internal/krypto"
)

// transitions lists the allowed state transitions. No transition leads
// back to StateUnverified.
var transitions = map[State]map[State]struct{}{
	StateUnverified: {
		StateActive: {},
	},
	StateActive: {
		StateDisabled: {},
	},
	StateDisabled: {},
}

// CanTransition reports whether the account may move to the given state.
func (a *Account) CanTransition(to State) error {
	from := a.State()
	if _, ok := transitions[from][to]; !ok {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// VerifyEmail moves an unverified account to StateActive and clears the
// verification token, so it can't be used again.
func (a *Account) VerifyEmail(tok krypto.Token) error {
	// verification tokens don't expire.
	if ValidateToken(tok, a.VerificationToken, nil, time.Time{}) != TokenValid {
		return ErrInvalidToken
	}

	err := a.CanTransition(StateActive)
	if err != nil {
		return err
	}

	a.Verified = true
	a.Enabled = true
	a.VerificationToken = nil
	return nil
}

// Disable moves an active account to StateDisabled.
func (a *Account) Disable() error {
	err := a.CanTransition(StateDisabled)
	if err != nil {
		return err
	}

	a.Enabled = false
	return nil
}

// CanLogin guards login, only active accounts may log in.
func (a *Account) CanLogin() error {
	if !a.Enabled {
		return ErrAccountDisabled
	}

	if !a.Verified {
		return ErrAccountNotVerified
	}

	return nil
}

// SetResetToken sets the reset token and its expiry together.
func (a *Account) SetResetToken(digest krypto.TokenDigest, expiry time.Time) {
	a.ResetToken = &digest
	a.ResetTokenExpiry = &expiry
}

// ClearResetToken clears the reset token and its expiry together.
func (a *Account) ClearResetToken() {
	a.ResetToken = nil
	a.ResetTokenExpiry = nil
}

// ResetPassword rotates the password hash and clears the reset token and expiry.
// It's allowed in every state, users must be able to recover access even if they
// never verified their email.
func (a *Account) ResetPassword(tok krypto.Token, hash krypto.Argon2Hash, now time.Time) error {
	switch ValidateToken(tok, a.ResetToken, a.ResetTokenExpiry, now) {
	case TokenValid:
	case TokenExpired:
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}

	a.PasswordHash = hash
	a.ClearResetToken()
	return nil
}
