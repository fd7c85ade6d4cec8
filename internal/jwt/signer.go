// Package jwt mints and verifies the bearer tokens handed out after
// registration and login.
package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/willemschots/webauth/internal/krypto"
)

var ErrInvalidToken = errors.New("invalid bearer token")

const DefaultTTL = 24 * time.Hour

// Claims are the claims of a bearer token. The subject is the account id.
type Claims struct {
	gojwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Config configures the Signer.
type Config struct {
	Issuer string
	TTL    time.Duration
}

// Signer mints and verifies HS256 signed tokens.
type Signer struct {
	key krypto.Key
	cfg Config

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewSigner(key krypto.Key, cfg Config) *Signer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Signer{
		key:     key,
		cfg:     cfg,
		NowFunc: time.Now,
	}
}

// Mint creates a signed token for subject with the given roles.
func (s *Signer) Mint(subject string, roles []string) (string, error) {
	now := s.NowFunc()

	claims := Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
		Roles: append([]string(nil), roles...),
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key.SecretValue())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify checks the signature, issuer and time based claims of raw. Every
// failure is reported as ErrInvalidToken.
func (s *Signer) Verify(raw string) (Claims, error) {
	var claims Claims
	_, err := gojwt.ParseWithClaims(raw, &claims, func(*gojwt.Token) (any, error) {
		return s.key.SecretValue(), nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(s.cfg.Issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.NowFunc),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}
