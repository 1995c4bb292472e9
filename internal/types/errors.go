package types

import "errors"

// Sentinel errors for the account domain. Services wrap these with
// fmt.Errorf("...: %w", err) so handlers can dispatch on errors.Is while
// logs keep the full chain.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("requested item not found")

	// ErrEmailExists is returned when registration collides with an
	// existing account email.
	ErrEmailExists = errors.New("email address already registered")

	// ErrRoleNotConfigured indicates the default role is missing from the
	// store. This is a deployment fault, not a user error.
	ErrRoleNotConfigured = errors.New("default user role was not initiated")

	// ErrInvalidToken is returned when an activation code matches no token.
	ErrInvalidToken = errors.New("invalid activation token")

	// ErrTokenExpired is returned when an activation code is past its
	// expiry. A replacement code has already been dispatched by the time
	// callers see this error.
	ErrTokenExpired = errors.New("activation token has expired, a new token has been sent to the same email address")

	// ErrTokenAlreadyUsed is returned when an activation code was already
	// consumed by an earlier activation.
	ErrTokenAlreadyUsed = errors.New("activation token has already been used")

	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("login and / or password is incorrect")

	// ErrAccountLocked is returned for valid credentials on a locked account.
	ErrAccountLocked = errors.New("user account is locked")

	// ErrAccountDisabled is returned for valid credentials on an account
	// that has not completed activation.
	ErrAccountDisabled = errors.New("user account is disabled")
)

// Business error codes carried in error responses alongside the HTTP status.
const (
	CodeAccountLocked     = 302
	CodeAccountDisabled   = 303
	CodeBadCredentials    = 304
	CodeInvalidToken      = 305
	CodeTokenExpired      = 306
	CodeTokenAlreadyUsed  = 307
	CodeEmailExists       = 308
	CodeRoleNotConfigured = 309
	CodeNotFound          = 310
)

// BusinessErrorCode returns the numeric business code for err, or 0 when
// none applies.
func BusinessErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrAccountLocked):
		return CodeAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return CodeAccountDisabled
	case errors.Is(err, ErrInvalidCredentials):
		return CodeBadCredentials
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrTokenAlreadyUsed):
		return CodeTokenAlreadyUsed
	case errors.Is(err, ErrEmailExists):
		return CodeEmailExists
	case errors.Is(err, ErrRoleNotConfigured):
		return CodeRoleNotConfigured
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return 0
	}
}
