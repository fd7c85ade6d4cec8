package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/jwt"
	"github.com/willemschots/webauth/internal/ratelimit"
)

const (
	msgTooManyLogins = "Too many login attempts. Please try again later."
	msgTooManyResets = "Too many password reset attempts. Please try again later."
	// msgResetRequested is also used for unknown email addresses, so
	// the response doesn't reveal which addresses have an account.
	msgResetRequested = "Password reset instructions sent to your email"

	defaultMaxBodyBytes = 1 << 20
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (jwt.Claims, error)
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	Limiter     *ratelimit.Limiter
	Verifier    TokenVerifier
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	// PhoneRegion is used for phone numbers without a country code.
	PhoneRegion  string
	MaxBodyBytes int64
}

type Server struct {
	deps    *ServerDeps
	cfg     ServerConfig
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		mux:     http.NewServeMux(),
		decoder: decoder,
	}

	// The endpoints below are created using the map functions.
	// These return handlers that map between HTTP requests, target functions and HTTP responses.

	s.mux.Handle("POST /api/auth/register", mapJSON(s, func(ctx context.Context, in registerRequest) (authResponse, error) {
		reg, err := in.parse(s.cfg.PhoneRegion)
		if err != nil {
			return authResponse{}, err
		}

		res, err := s.deps.AuthService.Register(ctx, reg)
		if err != nil {
			return authResponse{}, err
		}

		return newAuthResponse(res), nil
	}))

	s.mux.Handle("POST /api/auth/login", s.limited(ratelimit.BucketLogin, msgTooManyLogins,
		mapJSON(s, func(ctx context.Context, in loginRequest) (authResponse, error) {
			creds, err := in.parse()
			if err != nil {
				return authResponse{}, err
			}

			res, err := s.deps.AuthService.Login(ctx, creds)
			if err != nil {
				return authResponse{}, err
			}

			return newAuthResponse(res), nil
		}),
	))

	s.mux.Handle("GET /api/auth/verify-email", mapQuery(s, func(ctx context.Context, in verifyEmailRequest) (authResponse, error) {
		tok, err := parseToken(in.Token)
		if err != nil {
			return authResponse{}, err
		}

		res, err := s.deps.AuthService.VerifyEmail(ctx, tok)
		if err != nil {
			return authResponse{}, err
		}

		return newAuthResponse(res), nil
	}))

	s.mux.Handle("POST /api/auth/forgot-password", s.limited(ratelimit.BucketForgotPassword, msgTooManyResets,
		mapJSON(s, func(ctx context.Context, in forgotPasswordRequest) (authResponse, error) {
			addr, err := in.parse()
			if err != nil {
				return authResponse{}, err
			}

			res, err := s.deps.AuthService.ForgotPassword(ctx, addr)
			if errors.Is(err, auth.ErrAccountNotFound) {
				return authResponse{Message: msgResetRequested}, nil
			}

			if err != nil {
				return authResponse{}, err
			}

			return newAuthResponse(res), nil
		}),
	))

	s.mux.Handle("POST /api/auth/reset-password", mapJSON(s, func(ctx context.Context, in resetPasswordRequest) (authResponse, error) {
		tok, pwd, err := in.parse()
		if err != nil {
			return authResponse{}, err
		}

		res, err := s.deps.AuthService.ResetPassword(ctx, tok, pwd)
		if err != nil {
			return authResponse{}, err
		}

		return newAuthResponse(res), nil
	}))

	s.mux.Handle("GET /api/auth/me", s.authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())

		err := writeJSON(w, http.StatusOK, meResponse{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})
		if err != nil {
			s.deps.Logger.Error("failed to write response", "url", r.URL.Path, "error", err)
		}
	})))

	s.mux.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		if err != nil {
			s.deps.Logger.Error("failed to write response", "url", r.URL.Path, "error", err)
		}
	}))

	// Wrap the mux with global middlewares.
	middlewares := []func(http.Handler) http.Handler{
		s.logRequests,
		limitBody(cfg.MaxBodyBytes),
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
