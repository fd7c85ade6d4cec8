package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/willemschots/webauth/internal/krypto"
)

const (
	// minPasswordChars counts characters, a multibyte character
	// does not make a short password strong.
	minPasswordChars = 8
	// maxPasswordBytes allows long passphrases, but bounds the input of
	// the hash function.
	maxPasswordBytes = 512
)

var ErrInvalidPassword = errors.New("invalid password")

// Password is a plaintext password.
//
// It is never persisted, logged or otherwise exposed. Formatting, marshalling
// and logging a Password all result in krypto.SecretMarker. A Password can
// only be hashed or matched against a hash.
type Password struct {
	plain []byte
}

// ParsePassword checks the length of a plaintext password. Passwords
// need to be valid UTF-8 and can't consist of whitespace only.
func ParsePassword(pwd string) (Password, error) {
	switch {
	case !utf8.ValidString(pwd):
		return Password{}, fmt.Errorf("%w: not valid UTF-8", ErrInvalidPassword)
	case strings.TrimSpace(pwd) == "":
		return Password{}, fmt.Errorf("%w: must not be blank", ErrInvalidPassword)
	case utf8.RuneCountInString(pwd) < minPasswordChars:
		return Password{}, fmt.Errorf("%w: must be at least %d characters", ErrInvalidPassword, minPasswordChars)
	case len(pwd) > maxPasswordBytes:
		return Password{}, fmt.Errorf("%w: must be at most %d bytes", ErrInvalidPassword, maxPasswordBytes)
	}

	return Password{plain: []byte(pwd)}, nil
}

// Match checks in constant time if the plaintext password matches the given hash.
func (p Password) Match(h krypto.Argon2Hash) bool {
	return h.MatchBytes(p.plain)
}

// Hash hashes the plaintext password using the argon2id algorithm.
func (p Password) Hash() (krypto.Argon2Hash, error) {
	return krypto.HashArgon2(p.plain)
}

func (p Password) Format(f fmt.State, verb rune) {
	f.Write([]byte(krypto.SecretMarker))
}

func (p Password) MarshalText() ([]byte, error) {
	return []byte(krypto.SecretMarker), nil
}

func (p Password) LogValue() slog.Value {
	return slog.StringValue(krypto.SecretMarker)
}
