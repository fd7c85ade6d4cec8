package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/willemschots/webauth/internal/jwt"
	"github.com/willemschots/webauth/internal/ratelimit"
)

// limited only lets requests through if a token could be acquired from
// the bucket with the given id.
func (s *Server) limited(id ratelimit.BucketID, message string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.deps.Limiter.TryAcquire(r.Context(), id)
		if errors.Is(err, ratelimit.ErrRateLimited) {
			s.deps.Logger.Warn("rate limited", "bucket", id)
			s.writeError(w, r, http.StatusTooManyRequests, errorResponse{Message: message})
			return
		}

		if err != nil {
			s.handleError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticated only lets requests through that carry a valid bearer token.
// The claims of the token are put in the request context.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			s.handleError(w, r, jwt.ErrInvalidToken)
			return
		}

		claims, err := s.deps.Verifier.Verify(strings.TrimSpace(raw))
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctxWithClaims(r.Context(), claims)))
	})
}

// limitBody limits the size of request bodies.
func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs every request once it's handled.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.deps.Logger.Info("handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
