package auth

import (
	"errors"
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// Phone is a phone number in E.164 format, or empty if none was provided.
type Phone string

// ParsePhone normalizes raw to E.164. Numbers without a country code
// are interpreted in defaultRegion (an ISO 3166-1 alpha-2 code).
// An empty raw value results in an empty Phone.
func ParsePhone(raw, defaultRegion string) (Phone, error) {
	if raw == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPhone, err)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}

	return Phone(phonenumbers.Format(num, phonenumbers.E164)), nil
}
