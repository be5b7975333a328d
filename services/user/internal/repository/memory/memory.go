// Package memory is an in-process implementation of the user service
// repositories. One mutex guards all state, which gives every method the
// same atomicity the PostgreSQL implementation gets from row locks.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
	"github.com/intelliguard/intelliguard/pkg/pagination"
	"github.com/intelliguard/intelliguard/services/user/internal/domain"
	"github.com/intelliguard/intelliguard/services/user/internal/repository"
)

// DB holds accounts, roles and refresh tokens.
type DB struct {
	mu      sync.Mutex
	users   map[string]*domain.Account
	byEmail map[string]string
	roles   map[string]domain.Role
	tokens  map[string]*domain.RefreshToken
}

// New returns an empty DB seeded with the given role names.
func New(roles ...string) *DB {
	db := &DB{
		users:   make(map[string]*domain.Account),
		byEmail: make(map[string]string),
		roles:   make(map[string]domain.Role),
		tokens:  make(map[string]*domain.RefreshToken),
	}
	for i, name := range roles {
		db.roles[name] = domain.Role{ID: int64(i + 1), Name: name}
	}
	return db
}

// Users returns the account repository view.
func (db *DB) Users() *UserRepository { return &UserRepository{db: db} }

// Roles returns the role repository view.
func (db *DB) Roles() *RoleRepository { return &RoleRepository{db: db} }

// Tokens returns the refresh token repository view.
func (db *DB) Tokens() *RefreshTokenRepository { return &RefreshTokenRepository{db: db} }

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	return &cp
}

// UserRepository implements repository.UserRepository.
type UserRepository struct{ db *DB }

var _ repository.UserRepository = (*UserRepository)(nil)

// Create checks every precondition before it writes, so a failure leaves
// no account behind.
func (r *UserRepository) Create(_ context.Context, a *domain.Account, first *domain.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	email := domain.NormalizeEmail(a.Email)
	if _, taken := r.db.byEmail[email]; taken {
		return domain.DuplicateAccount()
	}
	if first != nil {
		if err := r.db.checkTokenLocked(first); err != nil {
			return err
		}
		r.db.insertTokenLocked(first)
	}
	stored := copyAccount(a)
	stored.Email = email
	r.db.users[a.ID] = stored
	r.db.byEmail[email] = a.ID
	return nil
}

func (r *UserRepository) Update(_ context.Context, a *domain.Account) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.users[a.ID]
	if !ok {
		return apperrors.NotFound("account", a.ID)
	}
	email := domain.NormalizeEmail(a.Email)
	if owner, taken := r.db.byEmail[email]; taken && owner != a.ID {
		return domain.DuplicateAccount()
	}
	delete(r.db.byEmail, cur.Email)
	stored := copyAccount(a)
	stored.Email = email
	r.db.users[a.ID] = stored
	r.db.byEmail[email] = a.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyAccount(a), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	id, ok := r.db.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyAccount(r.db.users[id]), nil
}

func (r *UserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, ok := r.db.byEmail[domain.NormalizeEmail(email)]
	return ok, nil
}

func (r *UserRepository) GetByVerificationToken(_ context.Context, token string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool {
		return a.EmailVerificationToken != nil && *a.EmailVerificationToken == token
	})
}

func (r *UserRepository) GetByPasswordResetToken(_ context.Context, token string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool {
		return a.PasswordResetToken != nil && *a.PasswordResetToken == token
	})
}

func (r *UserRepository) ListActive(_ context.Context, p pagination.Params) ([]domain.Account, int, error) {
	return r.page(p, (*domain.Account).IsActive)
}

func (r *UserRepository) ListByStatus(_ context.Context, status domain.Status, p pagination.Params) ([]domain.Account, int, error) {
	return r.page(p, func(a *domain.Account) bool { return a.Status == status })
}

func (r *UserRepository) UpdateLockout(_ context.Context, id string, now time.Time, fn func(domain.Lockout) domain.Lockout) (domain.Lockout, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.users[id]
	if !ok {
		return domain.Lockout{}, apperrors.NotFound("account", id)
	}
	next := fn(a.Lockout())
	a.ApplyLockout(next, now)
	return next, nil
}

func (r *UserRepository) RecordLogin(_ context.Context, id string, session *domain.RefreshToken, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.users[id]
	if !ok {
		return apperrors.NotFound("account", id)
	}
	if err := r.db.checkTokenLocked(session); err != nil {
		return err
	}
	a.RecordLogin(now)
	r.db.revokeAllLocked(id, now)
	r.db.insertTokenLocked(session)
	return nil
}

func (r *UserRepository) ClearExpiredLocks(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, a := range r.db.users {
		if a.LockedUntil != nil && a.LockedUntil.Before(now) {
			a.LockedUntil = nil
			a.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *UserRepository) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, a := range r.db.users {
		if match(a) {
			return copyAccount(a), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// page orders like the SQL implementation: newest first, then by id.
func (r *UserRepository) page(p pagination.Params, match func(*domain.Account) bool) ([]domain.Account, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	all := []domain.Account{}
	for _, a := range r.db.users {
		if match(a) {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	start := min(p.Offset(), total)
	end := min(start+p.Limit(), total)
	return all[start:end], total, nil
}

// RoleRepository implements repository.RoleRepository.
type RoleRepository struct{ db *DB }

var _ repository.RoleRepository = (*RoleRepository)(nil)

func (r *RoleRepository) GetByName(_ context.Context, name string) (*domain.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	role, ok := r.db.roles[name]
	if !ok {
		return nil, apperrors.NotFound("role", name)
	}
	return &role, nil
}

// RefreshTokenRepository implements repository.RefreshTokenRepository.
type RefreshTokenRepository struct{ db *DB }

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

func (r *RefreshTokenRepository) Create(_ context.Context, t *domain.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := r.db.checkTokenLocked(t); err != nil {
		return err
	}
	r.db.insertTokenLocked(t)
	return nil
}

func (r *RefreshTokenRepository) GetByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, ok := r.db.tokens[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *RefreshTokenRepository) RevokeAllValidForUser(_ context.Context, userID string, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.revokeAllLocked(userID, now), nil
}

func (r *RefreshTokenRepository) Rotate(_ context.Context, presentedHash string, replacement *domain.RefreshToken, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[replacement.UserID]; !ok {
		return apperrors.NotFound("account", replacement.UserID)
	}
	cur, ok := r.db.tokens[presentedHash]
	if !ok || cur.UserID != replacement.UserID || !cur.Valid(now) {
		return repository.ErrTokenNotValid
	}
	if err := r.db.checkTokenLocked(replacement); err != nil {
		return err
	}
	cur.Revoke(now)
	r.db.insertTokenLocked(replacement)
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for hash, t := range r.db.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.db.tokens, hash)
			n++
		}
	}
	return n, nil
}

// ValidForUser returns the user's currently valid tokens.
func (r *RefreshTokenRepository) ValidForUser(userID string, now time.Time) []domain.RefreshToken {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []domain.RefreshToken
	for _, t := range r.db.tokens {
		if t.UserID == userID && t.Valid(now) {
			out = append(out, *t)
		}
	}
	return out
}

func (db *DB) revokeAllLocked(userID string, now time.Time) int64 {
	var n int64
	for _, t := range db.tokens {
		if t.UserID == userID && t.Valid(now) {
			t.Revoke(now)
			n++
		}
	}
	return n
}

func (db *DB) checkTokenLocked(t *domain.RefreshToken) error {
	if _, dup := db.tokens[t.TokenHash]; dup {
		return apperrors.Conflict("refresh token collision")
	}
	return nil
}

func (db *DB) insertTokenLocked(t *domain.RefreshToken) {
	cp := *t
	db.tokens[t.TokenHash] = &cp
}
