package repository

import (
	"context"
	"errors"
	"time"

	"github.com/intelliguard/intelliguard/pkg/pagination"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
)

// ErrTokenNotValid is returned by Rotate when the presented token was
// revoked or expired by the time the rotation ran.
var ErrTokenNotValid = errors.New("refresh token not valid")

// UserRepository persists accounts. Lookups that find nothing return an
// error matching apperrors.ErrNotFound. Every read resolves the role.
type UserRepository interface {
	// Create inserts a new account and, when first is non-nil, its first
	// refresh token in one transaction. A taken email yields
	// domain.DuplicateAccount; the store's unique index is authoritative.
	// When any write fails nothing is stored.
	Create(ctx context.Context, a *domain.Account, first *domain.RefreshToken) error

	// Update writes every mutable field of an existing account.
	Update(ctx context.Context, a *domain.Account) error

	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.Account, error)
	GetByPasswordResetToken(ctx context.Context, token string) (*domain.Account, error)

	// ListActive returns active, verified, undeleted accounts and the total
	// count.
	ListActive(ctx context.Context, p pagination.Params) ([]domain.Account, int, error)

	// ListByStatus returns accounts in status and the total count.
	ListByStatus(ctx context.Context, status domain.Status, p pagination.Params) ([]domain.Account, int, error)

	// UpdateLockout applies fn to the account's lockout state while holding
	// a row lock, so concurrent failures never lose an increment.
	UpdateLockout(ctx context.Context, id string, now time.Time, fn func(domain.Lockout) domain.Lockout) (domain.Lockout, error)

	// RecordLogin clears the lockout state, sets last_login_at, revokes every
	// valid refresh token of the account and inserts session, all in one
	// transaction. When any write fails the account and its tokens are left
	// as they were.
	RecordLogin(ctx context.Context, id string, session *domain.RefreshToken, now time.Time) error

	// ClearExpiredLocks nulls locked_until where it is before now.
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

// RoleRepository resolves roles by name.
type RoleRepository interface {
	GetByName(ctx context.Context, name string) (*domain.Role, error)
}

// RefreshTokenRepository persists refresh token records. Rotate serializes
// on the owning account's row, as does UserRepository.RecordLogin, so
// concurrent logins and refreshes of one account see either the full
// pre-state or the full post-state.
type RefreshTokenRepository interface {
	// Create inserts a token. Token hashes are unique.
	Create(ctx context.Context, t *domain.RefreshToken) error

	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// RevokeAllValidForUser revokes every valid token of userID.
	RevokeAllValidForUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// Rotate revokes the valid token with presentedHash and inserts
	// replacement in one transaction. ErrTokenNotValid means nothing was
	// changed.
	Rotate(ctx context.Context, presentedHash string, replacement *domain.RefreshToken, now time.Time) error

	// DeleteExpired removes tokens whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
