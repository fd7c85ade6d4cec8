package web

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/errorz"
	"github.com/willemschots/webauth/internal/krypto"
)

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r registerRequest) parse(phoneRegion string) (auth.Registration, error) {
	var errs errorz.InvalidInput

	addr, err := email.ParseAddress(r.Email)
	if err != nil {
		errs = append(errs, errorz.FieldError{Field: "email", Err: err})
	}

	pwd, err := auth.ParsePassword(r.Password)
	if err != nil {
		errs = append(errs, errorz.FieldError{Field: "password", Err: err})
	}

	phone, err := auth.ParsePhone(r.PhoneNumber, phoneRegion)
	if err != nil {
		errs = append(errs, errorz.FieldError{Field: "phoneNumber", Err: err})
	}

	if len(errs) > 0 {
		return auth.Registration{}, errs
	}

	return auth.Registration{
		Name:     r.Name,
		Email:    addr,
		Password: pwd,
		Phone:    phone,
	}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r loginRequest) parse() (auth.Credentials, error) {
	addr, err := email.ParseAddress(r.Email)
	if err != nil {
		return auth.Credentials{}, errorz.InvalidInput{errorz.FieldError{Field: "email", Err: err}}
	}

	// A password that can't be parsed can't match any stored hash, but is
	// reported the same way as a wrong password.
	pwd, err := auth.ParsePassword(r.Password)
	if err != nil {
		return auth.Credentials{}, auth.ErrInvalidCredentials
	}

	return auth.Credentials{
		Email:    addr,
		Password: pwd,
	}, nil
}

type verifyEmailRequest struct {
	Token string `schema:"token" json:"token"`
}

func (r verifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (r forgotPasswordRequest) parse() (email.Address, error) {
	addr, err := email.ParseAddress(r.Email)
	if err != nil {
		return "", errorz.InvalidInput{errorz.FieldError{Field: "email", Err: err}}
	}
	return addr, nil
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

func (r resetPasswordRequest) parse() (krypto.Token, auth.Password, error) {
	pwd, err := auth.ParsePassword(r.NewPassword)
	if err != nil {
		return krypto.Token{}, auth.Password{}, errorz.InvalidInput{errorz.FieldError{Field: "newPassword", Err: err}}
	}

	tok, err := parseToken(r.Token)
	if err != nil {
		return krypto.Token{}, auth.Password{}, err
	}

	return tok, pwd, nil
}

// parseToken reports malformed tokens like unknown ones.
func parseToken(raw string) (krypto.Token, error) {
	tok, err := krypto.ParseToken(raw)
	if err != nil {
		return krypto.Token{}, errors.Join(auth.ErrInvalidToken, err)
	}
	return tok, nil
}

// authResponse is the response of the five auth endpoints.
type authResponse struct {
	Token   *string `json:"token"`
	Message string  `json:"message"`
}

func newAuthResponse(res auth.Result) authResponse {
	out := authResponse{
		Message: res.Message,
	}

	if res.Token != "" {
		out.Token = &res.Token
	}

	return out
}

type errorResponse struct {
	Token   *string           `json:"token"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type meResponse struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

type healthResponse struct {
	Status string `json:"status"`
}
