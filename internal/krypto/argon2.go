package krypto

import (
	"crypto/subtle"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidInput indicates input could not be hashed or parsed.
var ErrInvalidInput = errors.New("invalid input")

const (
	argon2Variant = "argon2id"

	// Parameters follow the OWASP recommendation for argon2id:
	// 46 MiB of memory, 1 iteration and a parallelism of 1.
	argon2MemoryKiB   = 47104
	argon2Iterations  = 1
	argon2Parallelism = 1

	saltLen = 16
	hashLen = 32
)

// Argon2Hash is an argon2id hash together with the parameters that
// were used to create it.
//
// The textual form is the PHC string format:
//
//	$argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
//
// Salt and hash are encoded using unpadded standard base64.
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes b with a fresh random salt.
func HashArgon2(b []byte) (Argon2Hash, error) {
	if len(b) == 0 {
		return Argon2Hash{}, ErrInvalidInput
	}

	salt, err := genRandomBytes(saltLen)
	if err != nil {
		return Argon2Hash{}, err
	}

	return Argon2Hash{
		Variant:     argon2Variant,
		Version:     argon2.Version,
		MemoryKiB:   argon2MemoryKiB,
		Iterations:  argon2Iterations,
		Parallelism: argon2Parallelism,
		Salt:        salt,
		Hash:        argon2.IDKey(b, salt, argon2Iterations, argon2MemoryKiB, argon2Parallelism, hashLen),
	}, nil
}

// MatchBytes reports whether b hashes to h using the parameters stored in h.
// The comparison is done in constant time.
func (h Argon2Hash) MatchBytes(b []byte) bool {
	if len(h.Hash) == 0 || h.Parallelism == 0 {
		return false
	}

	other := argon2.IDKey(b, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}

// ParseArgon2Hash parses the PHC string format of an argon2id hash.
func ParseArgon2Hash(s string) (Argon2Hash, error) {
	parts := strings.Split(s, "$")
	// The string starts with a "$" so the first part is always empty.
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("%w: unexpected number of segments", ErrInvalidInput)
	}

	h := Argon2Hash{
		Variant: parts[1],
	}

	if h.Variant != argon2Variant {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported variant %q", ErrInvalidInput, h.Variant)
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return Argon2Hash{}, fmt.Errorf("%w: missing version", ErrInvalidInput)
	}

	var err error
	h.Version, err = strconv.Atoi(version)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: invalid version: %w", ErrInvalidInput, err)
	}

	if h.Version != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidInput, h.Version)
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return Argon2Hash{}, fmt.Errorf("%w: unexpected parameters %q", ErrInvalidInput, parts[3])
	}

	memory, err := parseParam(params[0], "m=", 32)
	if err != nil {
		return Argon2Hash{}, err
	}

	iterations, err := parseParam(params[1], "t=", 32)
	if err != nil {
		return Argon2Hash{}, err
	}

	parallelism, err := parseParam(params[2], "p=", 8)
	if err != nil {
		return Argon2Hash{}, err
	}

	h.MemoryKiB = uint32(memory)
	h.Iterations = uint32(iterations)
	h.Parallelism = uint8(parallelism)

	h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: invalid salt: %w", ErrInvalidInput, err)
	}

	h.Hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: invalid hash: %w", ErrInvalidInput, err)
	}

	return h, nil
}

func parseParam(s, prefix string, bitSize int) (uint64, error) {
	v, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return 0, fmt.Errorf("%w: expected parameter %q in %q", ErrInvalidInput, prefix, s)
	}

	n, err := strconv.ParseUint(v, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid parameter %q: %w", ErrInvalidInput, s, err)
	}

	return n, nil
}

// String returns the PHC string format of the hash.
func (h Argon2Hash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant,
		h.Version,
		h.MemoryKiB,
		h.Iterations,
		h.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Hash),
	)
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseArgon2Hash(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// Scan implements the sql.Scanner interface.
func (h *Argon2Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("unsupported type %T for argon2 hash", src)
	}
}

// Value implements the driver.Valuer interface.
func (h Argon2Hash) Value() (driver.Value, error) {
	return h.String(), nil
}
