package email_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/willemschots/webauth/internal/email"
)

func Test_ParseAddress(t *testing.T) {
	okTests := map[string]struct {
		raw  string
		want email.Address
	}{
		"ok, shortest possible": {
			raw:  "a@b",
			want: "a@b",
		},
		"ok, typical": {
			raw:  "alice@example.com",
			want: "alice@example.com",
		},
		"ok, case is kept": {
			raw:  "Alice@Example.com",
			want: "Alice@Example.com",
		},
		"ok, whitespace is trimmed": {
			raw:  " 	alice@example.com  ",
			want: "alice@example.com",
		},
		"ok, longest possible": {
			raw:  strings.Repeat("a", 242) + "@example.com",
			want: email.Address(strings.Repeat("a", 242) + "@example.com"),
		},
	}

	for name, tc := range okTests {
		t.Run(name, func(t *testing.T) {
			got, err := email.ParseAddress(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}

	failTests := map[string]string{
		"fail, empty":                 "",
		"fail, whitespace only":       " 	",
		"fail, missing @":             "alice.example.com",
		"fail, missing domain":        "alice@",
		"fail, missing local part":    "@example.com",
		"fail, with name":             "Alice <alice@example.com>",
		"fail, with name and comment": "Alice <alice@example.com>(comment)",
		"fail, too long":              strings.Repeat("a", 243) + "@example.com",
	}

	for name, raw := range failTests {
		t.Run(name, func(t *testing.T) {
			_, err := email.ParseAddress(raw)
			if !errors.Is(err, email.ErrInvalidEmail) {
				t.Fatalf("expected error to be email.ErrInvalidEmail via errors.Is, but got %v", err)
			}
		})
	}
}

func Test_Address_UnmarshalText(t *testing.T) {
	t.Run("ok, from json", func(t *testing.T) {
		var in struct {
			Email email.Address `json:"email"`
		}

		err := json.Unmarshal([]byte(`{"email":" alice@example.com "}`), &in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if in.Email != "alice@example.com" {
			t.Errorf("got %q", in.Email)
		}
	})

	t.Run("fail, from json", func(t *testing.T) {
		var in struct {
			Email email.Address `json:"email"`
		}

		err := json.Unmarshal([]byte(`{"email":"alice"}`), &in)
		if !errors.Is(err, email.ErrInvalidEmail) {
			t.Fatalf("expected error to be email.ErrInvalidEmail via errors.Is, but got %v", err)
		}
	})
}
