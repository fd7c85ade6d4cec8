package web

import (
	"errors"
	"net/http"

	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/errorz"
	"github.com/willemschots/webauth/internal/jwt"
)

const (
	msgInvalidInput       = "Invalid input"
	msgInvalidCredentials = "Invalid email or password"
	msgInternal           = "Internal server error"
)

// errorStatuses maps expected errors to a status and a user facing message.
// The first match wins.
var errorStatuses = []struct {
	err     error
	status  int
	message string
}{
	{auth.ErrDuplicateAccount, http.StatusConflict, "Email already registered"},
	// Unknown accounts and wrong passwords can't be told apart.
	{auth.ErrAccountNotFound, http.StatusUnauthorized, msgInvalidCredentials},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, msgInvalidCredentials},
	{auth.ErrAccountNotVerified, http.StatusForbidden, "Please verify your email before logging in."},
	{auth.ErrAccountDisabled, http.StatusForbidden, "Account is disabled."},
	{auth.ErrTokenExpired, http.StatusBadRequest, "Token has expired"},
	{auth.ErrInvalidToken, http.StatusBadRequest, "Invalid or expired token"},
	{auth.ErrTransport, http.StatusBadGateway, "Failed to send email, please try again later."},
	{jwt.ErrInvalidToken, http.StatusUnauthorized, "Unauthorized"},
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidInput errorz.InvalidInput
	if errors.As(err, &invalidInput) {
		s.writeError(w, r, http.StatusBadRequest, errorResponse{
			Message: msgInvalidInput,
			Errors:  invalidInput.Fields(),
		})
		return
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, errorResponse{
			Message: "Request body too large",
		})
		return
	}

	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				s.deps.Logger.Warn("upstream failure", "url", r.URL.Path, "error", err)
			}

			s.writeError(w, r, e.status, errorResponse{Message: e.message})
			return
		}
	}

	s.deps.Logger.Error("internal server error", "url", r.URL.Path, "error", err)
	s.writeError(w, r, http.StatusInternalServerError, errorResponse{Message: msgInternal})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, res errorResponse) {
	err := writeJSON(w, status, res)
	if err != nil {
		s.deps.Logger.Error("failed to write error response", "url", r.URL.Path, "error", err)
	}
}
