package auth

import (
	"time"

	"github.com/willemschots/webauth/internal/krypto"
)

// TokenStatus is the outcome of validating a token against a stored digest.
type TokenStatus int

const (
	TokenNotFound TokenStatus = iota
	TokenValid
	TokenExpired
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "not found"
	}
}

// DefaultResetTokenExpiry is the validity of a password reset token.
const DefaultResetTokenExpiry = time.Hour

// TokenIssuer mints single-use tokens for email verification and password reset.
type TokenIssuer struct {
	// ResetExpiry is the duration a reset token is valid after issuance.
	ResetExpiry time.Duration

	// NowFunc is used to get the current time.
	NowFunc func() time.Time
}

// NewTokenIssuer creates a token issuer with the given reset token expiry.
func NewTokenIssuer(resetExpiry time.Duration) *TokenIssuer {
	return &TokenIssuer{
		ResetExpiry: resetExpiry,
		NowFunc:     time.Now,
	}
}

// IssueVerificationToken returns a new random token and the digest to persist.
func (i *TokenIssuer) IssueVerificationToken() (krypto.Token, krypto.TokenDigest, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return krypto.Token{}, krypto.TokenDigest{}, err
	}

	return tok, tok.Digest(), nil
}

// IssueResetToken returns a new random token, the digest to persist and the
// moment the token expires.
func (i *TokenIssuer) IssueResetToken() (krypto.Token, krypto.TokenDigest, time.Time, error) {
	tok, digest, err := i.IssueVerificationToken()
	if err != nil {
		return krypto.Token{}, krypto.TokenDigest{}, time.Time{}, err
	}

	return tok, digest, i.NowFunc().Add(i.ResetExpiry), nil
}

// ValidateToken checks tok against the stored digest and optional expiry.
// A token is only valid strictly before its expiry. Tokens are validated
// against the account they were issued for, see Account.VerifyEmail and
// Account.ResetPassword.
func ValidateToken(tok krypto.Token, stored *krypto.TokenDigest, expiry *time.Time, now time.Time) TokenStatus {
	if stored == nil || !stored.Equal(tok.Digest()) {
		return TokenNotFound
	}

	if expiry != nil && !now.Before(*expiry) {
		return TokenExpired
	}

	return TokenValid
}
