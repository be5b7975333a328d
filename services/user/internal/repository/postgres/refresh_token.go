package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/intelliguard/intelliguard/pkg/database"
	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
	"github.com/intelliguard/intelliguard/services/user/internal/repository"
)

const tokenHashUniqueConstraint = "refresh_tokens_token_hash_key"

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// PostgreSQL.
type RefreshTokenRepository struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewRefreshTokenRepository creates a PostgreSQL-backed token repository.
func NewRefreshTokenRepository(db database.DBTX, tracer *database.QueryTracer) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, tracer: tracer}
}

// Create inserts t.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	ctx, end := r.tracer.Start(ctx, "refresh_tokens.create", "INSERT INTO refresh_tokens")
	defer func() { end(err) }()

	return insertToken(ctx, r.db, t)
}

// GetByHash retrieves a token record by digest.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (t *domain.RefreshToken, err error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	ctx, end := r.tracer.Start(ctx, "refresh_tokens.get_by_hash", query)
	defer func() { end(err) }()

	var rt domain.RefreshToken
	err = r.db.QueryRow(ctx, query, tokenHash).Scan(
		&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.Revoked, &rt.RevokedAt, &rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeAllValidForUser revokes every valid token of userID in one
// statement.
func (r *RefreshTokenRepository) RevokeAllValidForUser(ctx context.Context, userID string, now time.Time) (n int64, err error) {
	ctx, end := r.tracer.Start(ctx, "refresh_tokens.revoke_all", revokeAllQuery)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, revokeAllQuery, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

const revokeAllQuery = `
	UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
	WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2`

// Rotate revokes the presented token only if it is still valid, then inserts
// the replacement. Two concurrent rotations of one token cannot both succeed.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, presentedHash string, replacement *domain.RefreshToken, now time.Time) (err error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND user_id = $3 AND revoked = FALSE AND expires_at > $2`

	ctx, end := r.tracer.Start(ctx, "refresh_tokens.rotate", query)
	defer func() { end(err) }()

	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, replacement.UserID); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, query, presentedHash, now, replacement.UserID)
		if err != nil {
			return fmt.Errorf("revoke presented token: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return repository.ErrTokenNotValid
		}
		return insertToken(ctx, tx, replacement)
	})
}

// DeleteExpired removes tokens that expired before now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (n int64, err error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	ctx, end := r.tracer.Start(ctx, "refresh_tokens.delete_expired", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("account", userID)
		}
		return fmt.Errorf("lock user row: %w", err)
	}
	return nil
}

func insertToken(ctx context.Context, db execer, t *domain.RefreshToken) error {
	_, err := db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Revoked, t.RevokedAt, t.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, tokenHashUniqueConstraint) {
			return apperrors.Conflict("refresh token collision")
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}
