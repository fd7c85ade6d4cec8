package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

const (
	tokenLen  = 32
	digestLen = sha256.Size
)

var ErrInvalidToken = errors.New("invalid token")

// Token is a random single-use token that is sent via email.
//
// The only time a token should be provided in plaintext is as part of
// the email to the user. Tokens are confidential and should never be
// exposed in logs or persisted in plaintext, persist the Digest instead.
type Token [tokenLen]byte

// GenerateToken creates a new random token with 256 bits of entropy.
func GenerateToken() (Token, error) {
	b, err := genRandomBytes(tokenLen)
	if err != nil {
		return Token{}, err
	}
	return Token([tokenLen]byte(b)), nil
}

// ParseToken parses a token from its hex representation.
func ParseToken(raw string) (Token, error) {
	if len(raw) != tokenLen*2 {
		return Token{}, ErrInvalidToken
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	return Token([tokenLen]byte(b)), nil
}

// String returns the hex representation of the token, which is URL safe.
// As opposed to a Password this is allowed, we need to embed the
// token in emails.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// Digest returns the SHA-256 digest of the token. Tokens carry
// enough entropy that an unsalted digest can't be reversed, which
// keeps digests usable as lookup keys.
func (t Token) Digest() TokenDigest {
	return TokenDigest(sha256.Sum256(t[:]))
}

// LogValue implements the slog.Valuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// TokenDigest is the stored form of a Token.
type TokenDigest [digestLen]byte

// Equal compares two digests in constant time.
func (d TokenDigest) Equal(other TokenDigest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

func (d TokenDigest) String() string {
	return hex.EncodeToString(d[:])
}

// Scan implements the sql.Scanner interface.
func (d *TokenDigest) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported type %T for token digest", src)
	}

	if len(raw) != digestLen*2 {
		return ErrInvalidToken
	}

	_, err := hex.Decode(d[:], []byte(raw))
	if err != nil {
		return ErrInvalidToken
	}

	return nil
}

// Value implements the driver.Valuer interface.
func (d TokenDigest) Value() (driver.Value, error) {
	return d.String(), nil
}

func genRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}
