package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yisivlay/account-service/app/observability/metrics"
	"github.com/yisivlay/account-service/config"
	"github.com/yisivlay/account-service/internal/api/mail"
	"github.com/yisivlay/account-service/internal/types"
)

const activationEmailSubject = "Account activation"

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService defines the business logic contract for account registration,
// activation and authentication.
type AuthService interface {
	// Register creates a new disabled account with the default role and
	// dispatches the first activation code by email.
	Register(ctx context.Context, req RegisterRequest) error

	// Authenticate validates credentials and returns a signed bearer
	// credential on success.
	Authenticate(ctx context.Context, email, password string) (string, error)

	// Activate consumes an activation code and enables the owning account.
	// An expired code triggers issuance of a replacement code before the
	// types.ErrTokenExpired failure is reported.
	Activate(ctx context.Context, code string) error
}

// AuthServiceImpl implements AuthService.
type AuthServiceImpl struct {
	logger *slog.Logger
	cfg    *config.Config
	repo   AuthRepo
	issuer *TokenIssuer
	sender mail.Sender
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo AuthRepo, issuer *TokenIssuer, sender mail.Sender, cfg *config.Config, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger: logger,
		cfg:    cfg,
		repo:   repo,
		issuer: issuer,
		sender: sender,
	}
}

// Register creates the account in enabled=false state. The account creation
// and token issuance are persisted before returning; email delivery happens
// in the background and never fails the registration.
func (s *AuthServiceImpl) Register(ctx context.Context, req RegisterRequest) error {
	start := time.Now()
	l := s.logger.With(slog.String("method", "Register"), slog.String("email", req.Email))

	role, err := s.repo.GetRoleByName(ctx, types.DefaultRoleName)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.ErrorContext(ctx, "Default role missing from store")
			return fmt.Errorf("register: %w", types.ErrRoleNotConfigured)
		}
		return fmt.Errorf("register: role lookup failed: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("register: failed to hash password: %w", err)
	}

	user := &types.UserAccount{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
		Password:  string(hashed),
		Enabled:   false,
		Locked:    false,
		Roles:     []types.Role{*role},
	}

	if _, err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, types.ErrEmailExists) {
			l.WarnContext(ctx, "Registration with duplicate email")
			return err
		}
		return fmt.Errorf("register: %w", err)
	}

	if err := s.sendValidationEmail(ctx, user); err != nil {
		// Account exists but no code reached the store; surface the fault.
		return fmt.Errorf("register: %w", err)
	}

	metrics.Get().RegisterRequestsTotal.Add(ctx, 1)
	metrics.Get().RegisterDurationSeconds.Record(ctx, time.Since(start).Seconds())
	l.InfoContext(ctx, "Account registered", slog.String("userID", user.ID.String()))
	return nil
}

// Authenticate validates the submitted credentials. Unknown email and wrong
// password are deliberately indistinguishable to prevent account
// enumeration; locked/disabled states are reported only once the password
// verified.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, email, password string) (string, error) {
	l := s.logger.With(slog.String("method", "Authenticate"))
	metrics.Get().LoginRequestsTotal.Add(ctx, 1)

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			metrics.Get().LoginFailuresTotal.Add(ctx, 1)
			return "", fmt.Errorf("authenticate: %w", types.ErrInvalidCredentials)
		}
		return "", fmt.Errorf("authenticate: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		metrics.Get().LoginFailuresTotal.Add(ctx, 1)
		return "", fmt.Errorf("authenticate: %w", types.ErrInvalidCredentials)
	}

	if user.Locked {
		metrics.Get().LoginFailuresTotal.Add(ctx, 1)
		return "", fmt.Errorf("authenticate: %w", types.ErrAccountLocked)
	}
	if !user.Enabled {
		metrics.Get().LoginFailuresTotal.Add(ctx, 1)
		return "", fmt.Errorf("authenticate: %w", types.ErrAccountDisabled)
	}

	token, err := s.issuer.Mint(user)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	l.InfoContext(ctx, "User authenticated", slog.String("userID", user.ID.String()))
	return token, nil
}

// Activate looks up the token behind the submitted code and drives the
// account state machine. Consumed and expired tokens are rejected; an
// expired token additionally triggers a fresh code so the caller can retry.
func (s *AuthServiceImpl) Activate(ctx context.Context, code string) error {
	l := s.logger.With(slog.String("method", "Activate"))

	token, err := s.repo.GetActivationTokenByCode(ctx, code)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			metrics.Get().ActivationFailuresTotal.Add(ctx, 1)
			return fmt.Errorf("activate: %w", types.ErrInvalidToken)
		}
		return fmt.Errorf("activate: %w", err)
	}

	if token.Consumed() {
		metrics.Get().ActivationFailuresTotal.Add(ctx, 1)
		l.WarnContext(ctx, "Activation attempted with consumed token", slog.String("userID", token.UserID.String()))
		return fmt.Errorf("activate: %w", types.ErrTokenAlreadyUsed)
	}

	if token.Expired(time.Now()) {
		user, err := s.repo.GetUserByID(ctx, token.UserID)
		if err != nil {
			return fmt.Errorf("activate: %w", err)
		}
		// Compensating action: mint and dispatch a replacement code, then
		// still fail the current attempt.
		if err := s.sendValidationEmail(ctx, user); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
		metrics.Get().ActivationFailuresTotal.Add(ctx, 1)
		l.InfoContext(ctx, "Expired activation code, replacement dispatched", slog.String("userID", token.UserID.String()))
		return fmt.Errorf("activate: %w", types.ErrTokenExpired)
	}

	if err := s.repo.ActivateAccount(ctx, token.ID, token.UserID, time.Now()); err != nil {
		if errors.Is(err, types.ErrTokenAlreadyUsed) {
			metrics.Get().ActivationFailuresTotal.Add(ctx, 1)
		}
		return fmt.Errorf("activate: %w", err)
	}

	metrics.Get().ActivationsTotal.Add(ctx, 1)
	l.InfoContext(ctx, "Account activated", slog.String("userID", token.UserID.String()))
	return nil
}

// sendValidationEmail generates and persists a fresh activation token, then
// hands the plaintext code to the mail sender in the background. Prior
// unconsumed tokens are left untouched.
func (s *AuthServiceImpl) sendValidationEmail(ctx context.Context, user *types.UserAccount) error {
	code, err := generateActivationCode(s.cfg.Activation.CodeLength)
	if err != nil {
		return fmt.Errorf("failed to generate activation code: %w", err)
	}

	now := time.Now()
	token := &types.ActivationToken{
		UserID:    user.ID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Activation.CodeTTL),
	}
	if err := s.repo.CreateActivationToken(ctx, token); err != nil {
		return err
	}
	metrics.Get().ActivationCodesIssued.Add(ctx, 1)

	// Fire-and-forget: delivery failures are logged, never propagated.
	email, fullName := user.Email, user.FullName()
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := s.sender.Send(sendCtx, email, fullName, mail.TemplateActivateAccount,
			s.cfg.Activation.ActivationURL, code, activationEmailSubject)
		if err != nil {
			s.logger.Error("Failed to deliver activation email",
				slog.String("to", email),
				slog.Any("error", err),
			)
		}
	}()

	return nil
}

const activationCodeDigits = "0123456789"

// generateActivationCode returns a fixed-length numeric code drawn from a
// cryptographically secure source with uniform digit selection.
func generateActivationCode(length int) (string, error) {
	b := make([]byte, length)
	max := big.NewInt(int64(len(activationCodeDigits)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = activationCodeDigits[n.Int64()]
	}
	return string(b), nil
}
