package web_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/willemschots/webauth/assets"
	"github.com/willemschots/webauth/internal/auth"
	authdb "github.com/willemschots/webauth/internal/auth/db"
	"github.com/willemschots/webauth/internal/db/testdb"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/email/view"
	"github.com/willemschots/webauth/internal/jwt"
	"github.com/willemschots/webauth/internal/krypto"
	"github.com/willemschots/webauth/internal/ratelimit"
	"github.com/willemschots/webauth/internal/web"
)

const (
	testEmail    = "info@example.com"
	testPassword = "reallyStrongPassword1"
)

type serverTest struct {
	t      *testing.T
	server *web.Server
	sender *email.MemorySender
	signer *jwt.Signer
}

func newServerTest(t *testing.T, limits map[ratelimit.BucketID]ratelimit.BucketConfig) *serverTest {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	key := must(krypto.ParseKey("2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d"))

	testDB := testdb.RunWhile(t, true)
	encryptor := must(krypto.NewEncryptor([]krypto.Key{key}))
	store := authdb.New(testDB, testDB, encryptor, nil)

	sender := email.NewMemorySender()
	emailSvc := email.NewService(view.NewFSRenderer(assets.EmailFS), sender, email.Config{
		From:        "noreply@example.com",
		VerifyURL:   must(url.Parse("http://localhost:8080/api/auth/verify-email")),
		ResetURL:    must(url.Parse("http://localhost:5173/reset-password")),
		ResetExpiry: time.Hour,
	})

	signer := jwt.NewSigner(key, jwt.Config{Issuer: "webauth", TTL: time.Hour})

	authSvc, err := auth.NewService(store, emailSvc, signer, logger, auth.ServiceConfig{})
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	if limits == nil {
		limits = ratelimit.DefaultConfigs()
	}

	limiter, err := ratelimit.NewMemory(limits)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	server := web.NewServer(&web.ServerDeps{
		Logger:      logger,
		AuthService: authSvc,
		Limiter:     limiter,
		Verifier:    signer,
	}, web.ServerConfig{
		PhoneRegion: "NL",
	})

	return &serverTest{
		t:      t,
		server: server,
		sender: sender,
		signer: signer,
	}
}

type response struct {
	Status  int
	Token   *string           `json:"token"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
	ID      string            `json:"id"`
}

func (st *serverTest) do(method, target, body string, header http.Header) response {
	st.t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	st.server.ServeHTTP(rec, req)

	var res response
	err := json.NewDecoder(rec.Body).Decode(&res)
	if err != nil {
		st.t.Fatalf("failed to decode response of %s %s: %v", method, target, err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		st.t.Errorf("unexpected content type %q", ct)
	}

	res.Status = rec.Code
	return res
}

func (st *serverTest) post(target string, body any) response {
	st.t.Helper()

	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(body)
	if err != nil {
		st.t.Fatalf("failed to encode body: %v", err)
	}

	return st.do(http.MethodPost, target, buf.String(), nil)
}

func (st *serverTest) register() response {
	st.t.Helper()

	return st.post("/api/auth/register", map[string]string{
		"name":        "Alice",
		"email":       testEmail,
		"password":    testPassword,
		"phoneNumber": "06 12345678",
	})
}

func (st *serverTest) login(password string) response {
	st.t.Helper()

	return st.post("/api/auth/login", map[string]string{
		"email":    testEmail,
		"password": password,
	})
}

var tokenInLink = regexp.MustCompile(`token=([0-9a-f]{64})`)

// lastToken returns the token in the link of the most recent email.
func (st *serverTest) lastToken() string {
	st.t.Helper()

	emails := st.sender.Emails()
	if len(emails) == 0 {
		st.t.Fatalf("no emails were sent")
	}

	m := tokenInLink.FindStringSubmatch(emails[len(emails)-1].Body)
	if m == nil {
		st.t.Fatalf("no token in email body:\n%s", emails[len(emails)-1].Body)
	}
	return m[1]
}

func assertResponse(t *testing.T, res response, status int, message string) {
	t.Helper()

	if res.Status != status {
		t.Errorf("expected status %d, got %d (%q)", status, res.Status, res.Message)
	}

	if res.Message != message {
		t.Errorf("expected message %q, got %q", message, res.Message)
	}
}

func Test_Server_UserStories(t *testing.T) {
	t.Run("ok, register, verify, login and call me", func(t *testing.T) {
		st := newServerTest(t, nil)

		res := st.register()
		assertResponse(t, res, http.StatusOK, "Registration successful. Please check your email to verify your account.")
		if res.Token == nil {
			t.Fatalf("expected a token after registration")
		}

		res = st.login(testPassword)
		assertResponse(t, res, http.StatusForbidden, "Please verify your email before logging in.")

		verifyToken := st.lastToken()
		res = st.do(http.MethodGet, "/api/auth/verify-email?token="+verifyToken, "", nil)
		assertResponse(t, res, http.StatusOK, "Email verified successfully")
		if res.Token != nil {
			t.Errorf("expected null token, got %q", *res.Token)
		}

		res = st.do(http.MethodGet, "/api/auth/verify-email?token="+verifyToken, "", nil)
		assertResponse(t, res, http.StatusBadRequest, "Invalid or expired token")

		res = st.login(testPassword)
		assertResponse(t, res, http.StatusOK, "Login successful")
		if res.Token == nil {
			t.Fatalf("expected a token after login")
		}

		claims, err := st.signer.Verify(*res.Token)
		if err != nil {
			t.Fatalf("failed to verify token: %v", err)
		}

		me := st.do(http.MethodGet, "/api/auth/me", "", http.Header{
			"Authorization": {"Bearer " + *res.Token},
		})
		if me.Status != http.StatusOK || me.ID != claims.Subject {
			t.Fatalf("expected status 200 and id %q, got %d and %q", claims.Subject, me.Status, me.ID)
		}
	})

	t.Run("ok, forgot and reset password", func(t *testing.T) {
		st := newServerTest(t, nil)
		st.register()
		st.do(http.MethodGet, "/api/auth/verify-email?token="+st.lastToken(), "", nil)

		res := st.post("/api/auth/forgot-password", map[string]string{"email": testEmail})
		assertResponse(t, res, http.StatusOK, "Password reset instructions sent to your email")

		resetToken := st.lastToken()
		reset := map[string]string{"token": resetToken, "newPassword": "newPassword123"}

		res = st.post("/api/auth/reset-password", reset)
		assertResponse(t, res, http.StatusOK, "Password reset successful")

		res = st.post("/api/auth/reset-password", reset)
		assertResponse(t, res, http.StatusBadRequest, "Invalid or expired token")

		res = st.login(testPassword)
		assertResponse(t, res, http.StatusUnauthorized, "Invalid email or password")

		res = st.login("newPassword123")
		assertResponse(t, res, http.StatusOK, "Login successful")
	})

	t.Run("ok, forgot password for unknown email looks the same", func(t *testing.T) {
		st := newServerTest(t, nil)

		res := st.post("/api/auth/forgot-password", map[string]string{"email": testEmail})
		assertResponse(t, res, http.StatusOK, "Password reset instructions sent to your email")

		if n := len(st.sender.Emails()); n != 0 {
			t.Fatalf("expected 0 emails, got %d", n)
		}
	})

	t.Run("ok, registration succeeds when the email can't be sent", func(t *testing.T) {
		st := newServerTest(t, nil)
		st.sender.SetErr(errors.New("smtp down"))

		res := st.register()
		assertResponse(t, res, http.StatusOK, "Registration successful. However, there was an issue sending the verification email.")
	})

	t.Run("fail, forgot password when the email can't be sent", func(t *testing.T) {
		st := newServerTest(t, nil)
		st.register()
		st.sender.SetErr(errors.New("smtp down"))

		res := st.post("/api/auth/forgot-password", map[string]string{"email": testEmail})
		assertResponse(t, res, http.StatusBadGateway, "Failed to send email, please try again later.")
	})

	t.Run("fail, duplicate registration", func(t *testing.T) {
		st := newServerTest(t, nil)
		st.register()

		res := st.register()
		assertResponse(t, res, http.StatusConflict, "Email already registered")
	})

	t.Run("fail, unknown account and wrong password look the same", func(t *testing.T) {
		st := newServerTest(t, nil)

		unknown := st.login(testPassword)
		assertResponse(t, unknown, http.StatusUnauthorized, "Invalid email or password")

		st.register()
		st.do(http.MethodGet, "/api/auth/verify-email?token="+st.lastToken(), "", nil)

		wrong := st.login("wrongPassword")
		assertResponse(t, wrong, http.StatusUnauthorized, "Invalid email or password")
	})

	t.Run("fail, me without valid token", func(t *testing.T) {
		st := newServerTest(t, nil)

		headers := map[string]http.Header{
			"no header":     nil,
			"not bearer":    {"Authorization": {"Basic dXNlcjpwYXNz"}},
			"invalid token": {"Authorization": {"Bearer not-a-token"}},
		}

		for name, h := range headers {
			res := st.do(http.MethodGet, "/api/auth/me", "", h)
			if res.Status != http.StatusUnauthorized {
				t.Errorf("%s: expected status 401, got %d", name, res.Status)
			}
		}
	})
}

func Test_Server_Health(t *testing.T) {
	st := newServerTest(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	st.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	want := `{"status":"ok"}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("got body %s, want %s", got, want)
	}
}

func Test_Server_InvalidInput(t *testing.T) {
	tests := map[string]struct {
		method     string
		target     string
		body       string
		wantFields []string
	}{
		"register, invalid fields": {
			method:     http.MethodPost,
			target:     "/api/auth/register",
			body:       `{"name":"","email":"not-an-email","password":""}`,
			wantFields: []string{"email", "name", "password"},
		},
		"register, short password and invalid phone": {
			method:     http.MethodPost,
			target:     "/api/auth/register",
			body:       `{"name":"Alice","email":"info@example.com","password":"short","phoneNumber":"123"}`,
			wantFields: []string{"password", "phoneNumber"},
		},
		"register, unknown field": {
			method:     http.MethodPost,
			target:     "/api/auth/register",
			body:       `{"name":"Alice","email":"info@example.com","password":"reallyStrongPassword1","admin":true}`,
			wantFields: []string{"_"},
		},
		"login, malformed json": {
			method:     http.MethodPost,
			target:     "/api/auth/login",
			body:       `{"email":`,
			wantFields: []string{"_"},
		},
		"verify email, missing token": {
			method:     http.MethodGet,
			target:     "/api/auth/verify-email",
			wantFields: []string{"token"},
		},
		"forgot password, invalid email": {
			method:     http.MethodPost,
			target:     "/api/auth/forgot-password",
			body:       `{"email":"alice"}`,
			wantFields: []string{"email"},
		},
		"reset password, short password": {
			method:     http.MethodPost,
			target:     "/api/auth/reset-password",
			body:       `{"token":"abc","newPassword":"short"}`,
			wantFields: []string{"newPassword"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			st := newServerTest(t, nil)

			res := st.do(tc.method, tc.target, tc.body, nil)
			assertResponse(t, res, http.StatusBadRequest, "Invalid input")

			var got []string
			for k := range res.Errors {
				got = append(got, k)
			}

			if !sameElements(got, tc.wantFields) {
				t.Errorf("expected error fields %v, got %v", tc.wantFields, res.Errors)
			}
		})
	}

	t.Run("fail, malformed token", func(t *testing.T) {
		st := newServerTest(t, nil)

		res := st.do(http.MethodGet, "/api/auth/verify-email?token=not-hex", "", nil)
		assertResponse(t, res, http.StatusBadRequest, "Invalid or expired token")
	})
}

func Test_Server_RateLimits(t *testing.T) {
	limits := map[ratelimit.BucketID]ratelimit.BucketConfig{
		ratelimit.BucketLogin:          {Capacity: 2, Refill: 1, Interval: time.Hour},
		ratelimit.BucketForgotPassword: {Capacity: 1, Refill: 1, Interval: time.Hour},
	}

	t.Run("fail, too many logins", func(t *testing.T) {
		st := newServerTest(t, limits)

		for i := 0; i < 2; i++ {
			res := st.login(testPassword)
			assertResponse(t, res, http.StatusUnauthorized, "Invalid email or password")
		}

		res := st.login(testPassword)
		assertResponse(t, res, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")

		// Other endpoints are not limited by the login bucket.
		res = st.post("/api/auth/forgot-password", map[string]string{"email": testEmail})
		assertResponse(t, res, http.StatusOK, "Password reset instructions sent to your email")
	})

	t.Run("fail, too many password resets", func(t *testing.T) {
		st := newServerTest(t, limits)

		res := st.post("/api/auth/forgot-password", map[string]string{"email": testEmail})
		assertResponse(t, res, http.StatusOK, "Password reset instructions sent to your email")

		// Invalid requests also take a token, admission happens first.
		res = st.post("/api/auth/forgot-password", map[string]string{"email": "invalid"})
		assertResponse(t, res, http.StatusTooManyRequests, "Too many password reset attempts. Please try again later.")
	})
}

func sameElements(a, b []string) bool {
	count := func(s []string) map[string]int {
		m := map[string]int{}
		for _, v := range s {
			m[v]++
		}
		return m
	}
	return reflect.DeepEqual(count(a), count(b))
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
