package domain

import (
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
)

// Identity error kinds. Each wraps the matching shared sentinel so generic
// classification keeps working.
var (
	ErrDuplicateAccount    = fmt.Errorf("duplicate account: %w", apperrors.ErrAlreadyExists)
	ErrInvalidCredentials  = fmt.Errorf("invalid credentials: %w", apperrors.ErrUnauthorized)
	ErrAccountLocked       = fmt.Errorf("account locked: %w", apperrors.ErrLocked)
	ErrAccountDeleted      = fmt.Errorf("account deleted: %w", apperrors.ErrForbidden)
	ErrInvalidRefreshToken = fmt.Errorf("invalid refresh token: %w", apperrors.ErrUnauthorized)
	ErrConfiguration       = fmt.Errorf("configuration error: %w", apperrors.ErrInternal)
)

// Stable error codes.
const (
	CodeDuplicateAccount    = "DUPLICATE_ACCOUNT"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeAccountDeleted      = "ACCOUNT_DELETED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeConfiguration       = "CONFIGURATION_ERROR"
)

func DuplicateAccount() *apperrors.AppError {
	return apperrors.New(CodeDuplicateAccount, "an account with this email already exists", http.StatusConflict, ErrDuplicateAccount)
}

// InvalidCredentials is returned for both unknown emails and wrong passwords.
func InvalidCredentials() *apperrors.AppError {
	return apperrors.New(CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized, ErrInvalidCredentials)
}

// AccountLocked carries the unlock time in Details["locked_until"].
func AccountLocked(until time.Time) *apperrors.AppError {
	return apperrors.New(CodeAccountLocked, "account is temporarily locked", http.StatusLocked, ErrAccountLocked).
		WithDetail("locked_until", until.UTC().Format(time.RFC3339))
}

func AccountDeleted() *apperrors.AppError {
	return apperrors.New(CodeAccountDeleted, "account has been deleted", http.StatusForbidden, ErrAccountDeleted)
}

// InvalidRefreshToken does not say whether the token was unknown, revoked or
// expired.
func InvalidRefreshToken() *apperrors.AppError {
	return apperrors.New(CodeInvalidRefreshToken, "invalid refresh token", http.StatusUnauthorized, ErrInvalidRefreshToken)
}

// ConfigurationError reports a server-side setup problem. The cause is kept
// for logs; callers see a generic message.
func ConfigurationError(cause error) *apperrors.AppError {
	return apperrors.New(CodeConfiguration, "the service is misconfigured", http.StatusInternalServerError,
		fmt.Errorf("%w: %w", ErrConfiguration, cause))
}
