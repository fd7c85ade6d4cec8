package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/errorz"
	"github.com/willemschots/webauth/internal/krypto"
)

const (
	msgRegistered        = "Registration successful. Please check your email to verify your account."
	msgRegisteredNoEmail = "Registration successful. However, there was an issue sending the verification email."
	msgLoggedIn          = "Login successful"
	msgEmailVerified     = "Email verified successfully"
	msgResetRequested    = "Password reset instructions sent to your email"
	msgPasswordReset     = "Password reset successful"
	defaultNotifyTimeout = 30 * time.Second
	defaultRole          = "user"
)

// Notifier delivers tokens to the owner of an email address.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to email.Address, tok krypto.Token) error
	SendPasswordResetEmail(ctx context.Context, to email.Address, tok krypto.Token) error
}

// TokenSigner mints the bearer tokens returned to clients.
type TokenSigner interface {
	Mint(subject string, roles []string) (string, error)
}

// Registration is the input for Register.
type Registration struct {
	Name     string
	Email    email.Address
	Password Password
	Phone    Phone
}

// Credentials are used to log in.
type Credentials struct {
	Email    email.Address
	Password Password
}

// Result is the outcome of a successful operation.
type Result struct {
	// Token is a signed bearer token, empty for operations that don't log in.
	Token   string
	Message string
	// NotifyErr is set when a notification failed without failing the operation.
	NotifyErr error
}

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// ResetTokenExpiry is the duration a password reset token is valid.
	ResetTokenExpiry time.Duration
	// NotifyTimeout is the max duration of a single notification. Notifications
	// run after commit and are not cancelled when the caller goes away.
	NotifyTimeout time.Duration
}

// Service is the type that provides the main rules for
// authentication.
type Service struct {
	store    Store
	notifier Notifier
	signer   TokenSigner
	logger   *slog.Logger
	cfg      ServiceConfig
	issuer   *TokenIssuer

	// comparisonHash is used to compare passwords when no account was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, n Notifier, signer TokenSigner, logger *slog.Logger, cfg ServiceConfig) (*Service, error) {
	if cfg.ResetTokenExpiry <= 0 {
		cfg.ResetTokenExpiry = DefaultResetTokenExpiry
	}

	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}

	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		notifier:       n,
		signer:         signer,
		logger:         logger,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	svc.issuer = NewTokenIssuer(cfg.ResetTokenExpiry)
	svc.issuer.NowFunc = func() time.Time {
		return svc.NowFunc()
	}

	return svc, nil
}

// Register creates a new unverified account and sends a verification email.
//
// A failing notification does not fail the registration, the account was already
// committed. Instead the failure is reported in the NotifyErr and Message of the result.
func (s *Service) Register(ctx context.Context, r Registration) (Result, error) {
	// Hash outside of the transaction, hashing is slow by design.
	pwdHash, err := r.Password.Hash()
	if err != nil {
		return Result{}, err
	}

	tok, digest, err := s.issuer.IssueVerificationToken()
	if err != nil {
		return Result{}, err
	}

	acc := Account{
		ID:                uuid.New(),
		Name:              r.Name,
		Email:             r.Email,
		Phone:             r.Phone,
		PasswordHash:      pwdHash,
		Enabled:           true,
		Verified:          false,
		VerificationToken: &digest,
	}

	signed, err := s.signer.Mint(acc.ID.String(), []string{defaultRole})
	if err != nil {
		return Result{}, fmt.Errorf("failed to mint token: %w", err)
	}

	err = s.inTx(ctx, func(tx Tx) error {
		exists, txErr := tx.AccountExists(acc.Email)
		if txErr != nil {
			return txErr
		}

		if exists {
			return ErrDuplicateAccount
		}

		txErr = tx.CreateAccount(&acc)
		if errors.Is(txErr, errorz.ErrDuplicate) {
			return ErrDuplicateAccount
		}

		return txErr
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("account registered", "account_id", acc.ID)

	res := Result{
		Token:   signed,
		Message: msgRegistered,
	}

	err = s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.SendVerificationEmail(ctx, acc.Email, tok)
	})
	if err != nil {
		s.logger.Warn("failed to send verification email", "account_id", acc.ID, "error", err)
		res.Message = msgRegisteredNoEmail
		res.NotifyErr = err
	}

	return res, nil
}

// Login checks the credentials and returns a signed token on success.
//
// The password is compared before the state guards are applied, so the state of an
// account is only revealed to callers that know its password.
func (s *Service) Login(ctx context.Context, c Credentials) (Result, error) {
	acc, err := s.store.FindAccountByEmail(ctx, c.Email)
	if err != nil {
		if errors.Is(err, errorz.ErrNotFound) {
			// Even if no account is found we compare to a hash to prevent timing differences
			// that could result in account enumeration attacks.
			_ = c.Password.Match(s.comparisonHash)
			return Result{}, ErrAccountNotFound
		}
		return Result{}, storeErr(err)
	}

	if !c.Password.Match(acc.PasswordHash) {
		return Result{}, ErrInvalidCredentials
	}

	err = acc.CanLogin()
	if err != nil {
		return Result{}, err
	}

	signed, err := s.signer.Mint(acc.ID.String(), []string{defaultRole})
	if err != nil {
		return Result{}, fmt.Errorf("failed to mint token: %w", err)
	}

	s.logger.Info("account logged in", "account_id", acc.ID)

	return Result{
		Token:   signed,
		Message: msgLoggedIn,
	}, nil
}

// VerifyEmail activates the account the verification token was issued for.
// The token is cleared in the same update, a second call with the same token
// fails with ErrInvalidToken.
func (s *Service) VerifyEmail(ctx context.Context, tok krypto.Token) (Result, error) {
	var id uuid.UUID
	err := s.inTx(ctx, func(tx Tx) error {
		acc, txErr := tx.FindAccountByVerificationToken(tok.Digest())
		if txErr != nil {
			return mapNotFound(txErr, ErrInvalidToken)
		}

		txErr = acc.VerifyEmail(tok)
		if txErr != nil {
			return txErr
		}

		id = acc.ID
		return mapNotFound(tx.UpdateAccount(&acc), ErrInvalidToken)
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("email verified", "account_id", id)

	return Result{
		Message: msgEmailVerified,
	}, nil
}

// ForgotPassword issues a reset token for the account and emails it.
//
// A failing notification fails the operation. The reset token is then cleared again,
// so no valid but unreachable token is left behind.
func (s *Service) ForgotPassword(ctx context.Context, addr email.Address) (Result, error) {
	tok, digest, expiry, err := s.issuer.IssueResetToken()
	if err != nil {
		return Result{}, err
	}

	var acc Account
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, txErr = tx.FindAccountByEmail(addr)
		if txErr != nil {
			return mapNotFound(txErr, ErrAccountNotFound)
		}

		acc.SetResetToken(digest, expiry)

		return tx.UpdateAccount(&acc)
	})
	if err != nil {
		return Result{}, err
	}

	err = s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.SendPasswordResetEmail(ctx, acc.Email, tok)
	})
	if err != nil {
		s.logger.Warn("failed to send password reset email", "account_id", acc.ID, "error", err)

		rbErr := s.revokeResetToken(ctx, acc.ID, digest)
		if rbErr != nil {
			s.logger.Warn("failed to revoke reset token", "account_id", acc.ID, "error", rbErr)
			return Result{}, errors.Join(err, rbErr)
		}

		return Result{}, err
	}

	s.logger.Info("password reset requested", "account_id", acc.ID)

	return Result{
		Message: msgResetRequested,
	}, nil
}

// revokeResetToken clears the reset token of the account, but only if it's still
// the token identified by digest. A newer token is left alone.
func (s *Service) revokeResetToken(ctx context.Context, id uuid.UUID, digest krypto.TokenDigest) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx Tx) error {
		acc, txErr := tx.FindAccountByID(id)
		if txErr != nil {
			return txErr
		}

		if acc.ResetToken == nil || !acc.ResetToken.Equal(digest) {
			return nil
		}

		acc.ClearResetToken()

		return tx.UpdateAccount(&acc)
	})
}

// ResetPassword sets a new password using a reset token. The token and its expiry
// are cleared in the same update. An invalid or expired token never changes the password.
func (s *Service) ResetPassword(ctx context.Context, tok krypto.Token, pwd Password) (Result, error) {
	pwdHash, err := pwd.Hash()
	if err != nil {
		return Result{}, err
	}

	var id uuid.UUID
	err = s.inTx(ctx, func(tx Tx) error {
		acc, txErr := tx.FindAccountByResetToken(tok.Digest())
		if txErr != nil {
			return mapNotFound(txErr, ErrInvalidToken)
		}

		txErr = acc.ResetPassword(tok, pwdHash, s.NowFunc())
		if txErr != nil {
			return txErr
		}

		id = acc.ID
		return mapNotFound(tx.UpdateAccount(&acc), ErrInvalidToken)
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("password reset", "account_id", id)

	return Result{
		Message: msgPasswordReset,
	}, nil
}

// DisableAccount moves an active account to the disabled state.
func (s *Service) DisableAccount(ctx context.Context, id uuid.UUID) error {
	err := s.inTx(ctx, func(tx Tx) error {
		acc, txErr := tx.FindAccountByID(id)
		if txErr != nil {
			return mapNotFound(txErr, ErrAccountNotFound)
		}

		txErr = acc.Disable()
		if txErr != nil {
			return txErr
		}

		return tx.UpdateAccount(&acc)
	})
	if err != nil {
		return err
	}

	s.logger.Info("account disabled", "account_id", id)
	return nil
}

// notify runs f after a commit. The caller going away does not cancel
// the notification, the state change it reports already happened.
func (s *Service) notify(ctx context.Context, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	err := f(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return storeErr(err)
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return storeErr(err)
	}

	err = tx.Commit()
	if err != nil {
		return storeErr(err)
	}

	return nil
}

// domainErrs are the expected outcomes of operations, they are passed
// on unchanged. Everything else a transaction returns is a store failure.
var domainErrs = []error{
	ErrDuplicateAccount,
	ErrAccountNotFound,
	ErrAccountDisabled,
	ErrAccountNotVerified,
	ErrInvalidCredentials,
	ErrInvalidToken,
	ErrTokenExpired,
	ErrInvalidTransition,
}

func storeErr(err error) error {
	for _, target := range domainErrs {
		if errors.Is(err, target) {
			return err
		}
	}

	return fmt.Errorf("%w: %w", ErrStore, err)
}

func mapNotFound(err, target error) error {
	if errors.Is(err, errorz.ErrNotFound) {
		return target
	}
	return err
}
