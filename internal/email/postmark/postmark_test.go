package postmark_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/willemschots/webauth/internal/email/postmark"
	"github.com/willemschots/webauth/internal/krypto"
)

func Test_Sender_Send(t *testing.T) {
	t.Run("ok, email accepted", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Postmark-Server-Token") != "server-token" {
				t.Errorf("unexpected server token %q", r.Header.Get("X-Postmark-Server-Token"))
			}

			err := json.NewDecoder(r.Body).Decode(&got)
			if err != nil {
				t.Errorf("failed to decode request: %v", err)
			}

			_, _ = w.Write([]byte(`{"ErrorCode":0,"Message":"OK","MessageID":"b7bc2f4a"}`))
		}))
		defer srv.Close()

		err := newSender(t, srv.URL).Send(context.Background(), "noreply@example.com", "info@example.com", "Subject", "Body")
		if err != nil {
			t.Fatalf("failed to send: %v", err)
		}

		want := map[string]string{
			"From":          "noreply@example.com",
			"To":            "info@example.com",
			"Subject":       "Subject",
			"TextBody":      "Body",
			"MessageStream": "outbound",
		}

		for k, v := range want {
			if got[k] != v {
				t.Errorf("field %s: expected %q, got %q", k, v, got[k])
			}
		}
	})

	failTests := map[string]struct {
		status int
		body   string
	}{
		"fail, error code":       {status: http.StatusUnprocessableEntity, body: `{"ErrorCode":300,"Message":"Invalid email request"}`},
		"fail, unexpected body":  {status: http.StatusBadGateway, body: `<html></html>`},
		"fail, error code on ok": {status: http.StatusOK, body: `{"ErrorCode":406,"Message":"Inactive recipient"}`},
	}

	for name, tc := range failTests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := newSender(t, srv.URL).Send(context.Background(), "noreply@example.com", "info@example.com", "Subject", "Body")
			if !errors.Is(err, postmark.ErrAPI) {
				t.Fatalf("expected error %v, got %v", postmark.ErrAPI, err)
			}
		})
	}
}

func newSender(t *testing.T, rawURL string) *postmark.Sender {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("failed to parse url: %v", err)
	}

	return postmark.NewSender(http.DefaultClient, postmark.Settings{
		APIURL:        u,
		ServerToken:   krypto.NewSecret("server-token"),
		MessageStream: "outbound",
	})
}
