package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/intelliguard/intelliguard/pkg/database"
	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/pkg/pagination"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
)

const emailUniqueConstraint = "users_email_key"

const selectAccount = `
	SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, r.id, r.name, u.status,
	       u.email_verified, u.email_verification_token, u.failed_login_attempts, u.locked_until,
	       u.password_reset_token, u.password_reset_expires_at, u.last_password_change_at,
	       u.created_at, u.updated_at, u.last_login_at, u.deleted_at
	FROM users u
	JOIN roles r ON r.id = u.role_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a      domain.Account
		status string
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Role.ID, &a.Role.Name, &status,
		&a.EmailVerified, &a.EmailVerificationToken, &a.FailedLoginAttempts, &a.LockedUntil,
		&a.PasswordResetToken, &a.PasswordResetExpiresAt, &a.LastPasswordChangeAt,
		&a.CreatedAt, &a.UpdatedAt, &a.LastLoginAt, &a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.Status(status)
	return &a, nil
}

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewUserRepository creates a PostgreSQL-backed account repository. tracer
// may be nil.
func NewUserRepository(db database.DBTX, tracer *database.QueryTracer) *UserRepository {
	return &UserRepository{db: db, tracer: tracer}
}

const insertUserQuery = `
	INSERT INTO users (id, email, password_hash, first_name, last_name, role_id, status,
	                   email_verified, email_verification_token, failed_login_attempts, locked_until,
	                   last_password_change_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// Create inserts a new account. With a first token both rows are written in
// one transaction.
func (r *UserRepository) Create(ctx context.Context, a *domain.Account, first *domain.RefreshToken) (err error) {
	ctx, end := r.tracer.Start(ctx, "users.create", insertUserQuery)
	defer func() { end(err) }()

	if first == nil {
		return insertUser(ctx, r.db, a)
	}
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertUser(ctx, tx, a); err != nil {
			return err
		}
		return insertToken(ctx, tx, first)
	})
}

func insertUser(ctx context.Context, db execer, a *domain.Account) error {
	_, err := db.Exec(ctx, insertUserQuery,
		a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Role.ID, string(a.Status),
		a.EmailVerified, a.EmailVerificationToken, a.FailedLoginAttempts, a.LockedUntil,
		a.LastPasswordChangeAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, emailUniqueConstraint) {
			return domain.DuplicateAccount()
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update writes every mutable column of a.
func (r *UserRepository) Update(ctx context.Context, a *domain.Account) (err error) {
	query := `
		UPDATE users
		SET email = $1, password_hash = $2, first_name = $3, last_name = $4, role_id = $5, status = $6,
		    email_verified = $7, email_verification_token = $8, failed_login_attempts = $9, locked_until = $10,
		    password_reset_token = $11, password_reset_expires_at = $12, last_password_change_at = $13,
		    updated_at = $14, last_login_at = $15, deleted_at = $16
		WHERE id = $17`

	ctx, end := r.tracer.Start(ctx, "users.update", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Role.ID, string(a.Status),
		a.EmailVerified, a.EmailVerificationToken, a.FailedLoginAttempts, a.LockedUntil,
		a.PasswordResetToken, a.PasswordResetExpiresAt, a.LastPasswordChangeAt,
		a.UpdatedAt, a.LastLoginAt, a.DeletedAt,
		a.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err, emailUniqueConstraint) {
			return domain.DuplicateAccount()
		}
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", a.ID)
	}
	return nil
}

// GetByID retrieves an account by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, "users.get_by_id", selectAccount+` WHERE u.id = $1`, id)
}

// GetByEmail retrieves an account by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, "users.get_by_email", selectAccount+` WHERE u.email = $1`, domain.NormalizeEmail(email))
}

// GetByVerificationToken retrieves the unverified account holding token.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.Account, error) {
	return r.getOne(ctx, "users.get_by_verification_token", selectAccount+` WHERE u.email_verification_token = $1`, token)
}

// GetByPasswordResetToken retrieves the account holding a reset token.
func (r *UserRepository) GetByPasswordResetToken(ctx context.Context, token string) (*domain.Account, error) {
	return r.getOne(ctx, "users.get_by_password_reset_token", selectAccount+` WHERE u.password_reset_token = $1`, token)
}

// ExistsByEmail reports whether an account uses email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (exists bool, err error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	ctx, end := r.tracer.Start(ctx, "users.exists_by_email", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// ListActive returns active, verified, undeleted accounts, newest first.
func (r *UserRepository) ListActive(ctx context.Context, p pagination.Params) ([]domain.Account, int, error) {
	return r.list(ctx, "users.list_active", p, ` WHERE u.status = 'ACTIVE' AND u.email_verified AND u.deleted_at IS NULL`)
}

// ListByStatus returns accounts in status, newest first.
func (r *UserRepository) ListByStatus(ctx context.Context, status domain.Status, p pagination.Params) ([]domain.Account, int, error) {
	return r.list(ctx, "users.list_by_status", p, ` WHERE u.status = $1`, string(status))
}

// UpdateLockout applies fn under SELECT ... FOR UPDATE.
func (r *UserRepository) UpdateLockout(ctx context.Context, id string, now time.Time, fn func(domain.Lockout) domain.Lockout) (out domain.Lockout, err error) {
	ctx, end := r.tracer.Start(ctx, "users.update_lockout", "SELECT ... FOR UPDATE; UPDATE users")
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var cur domain.Lockout
		err := tx.QueryRow(ctx,
			`SELECT failed_login_attempts, locked_until FROM users WHERE id = $1 FOR UPDATE`, id,
		).Scan(&cur.FailedAttempts, &cur.LockedUntil)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NotFound("account", id)
			}
			return fmt.Errorf("lock user row: %w", err)
		}

		out = fn(cur)
		_, err = tx.Exec(ctx,
			`UPDATE users SET failed_login_attempts = $1, locked_until = $2, updated_at = $3 WHERE id = $4`,
			out.FailedAttempts, out.LockedUntil, now, id,
		)
		if err != nil {
			return fmt.Errorf("update lockout: %w", err)
		}
		return nil
	})
	return out, err
}

// RecordLogin resets the lockout state, stamps last_login_at and replaces
// the account's valid refresh tokens with session. The UPDATE takes the row
// lock that Rotate also waits on.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, session *domain.RefreshToken, now time.Time) (err error) {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $1, updated_at = $1
		WHERE id = $2`

	ctx, end := r.tracer.Start(ctx, "users.record_login", query)
	defer func() { end(err) }()

	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, query, now, id)
		if err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.NotFound("account", id)
		}
		if _, err := tx.Exec(ctx, revokeAllQuery, id, now); err != nil {
			return fmt.Errorf("revoke refresh tokens: %w", err)
		}
		return insertToken(ctx, tx, session)
	})
}

// ClearExpiredLocks nulls lock timestamps that have passed.
func (r *UserRepository) ClearExpiredLocks(ctx context.Context, now time.Time) (n int64, err error) {
	query := `UPDATE users SET locked_until = NULL, updated_at = $1 WHERE locked_until IS NOT NULL AND locked_until < $1`

	ctx, end := r.tracer.Start(ctx, "users.clear_expired_locks", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("clear expired locks: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg any) (a *domain.Account, err error) {
	ctx, end := r.tracer.Start(ctx, op, query)
	defer func() { end(err) }()

	a, err = scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return a, nil
}

// list returns one page of accounts matching where. Positional arguments
// for where come first; LIMIT and OFFSET are appended after them.
func (r *UserRepository) list(ctx context.Context, op string, p pagination.Params, where string, args ...any) (accounts []domain.Account, total int, err error) {
	countQuery := `SELECT COUNT(*) FROM users u` + where
	listQuery := fmt.Sprintf(`%s%s ORDER BY u.created_at DESC, u.id LIMIT $%d OFFSET $%d`,
		selectAccount, where, len(args)+1, len(args)+2)

	ctx, end := r.tracer.Start(ctx, op, listQuery)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx, listQuery, append(args, p.Limit(), p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	accounts = []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate user rows: %w", err)
	}
	return accounts, total, nil
}

// RoleRepository implements repository.RoleRepository using PostgreSQL.
type RoleRepository struct {
	db database.DBTX
}

// NewRoleRepository creates a PostgreSQL-backed role repository.
func NewRoleRepository(db database.DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

// GetByName resolves a role by its exact name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("role", name)
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &role, nil
}
