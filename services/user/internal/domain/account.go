package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusActive              Status = "ACTIVE"
	StatusSuspended           Status = "SUSPENDED"
	StatusDeleted             Status = "DELETED"
)

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPendingVerification, StatusActive, StatusSuspended, StatusDeleted:
		return st, true
	}
	return "", false
}

// Account is a registered identity. An account counts as soft-deleted when
// either Status is DELETED or DeletedAt is set, matching the deleted_at
// filter the store applies to listings. MarkDeleted sets both.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Status       Status

	EmailVerified          bool
	EmailVerificationToken *string

	FailedLoginAttempts int
	LockedUntil         *time.Time

	PasswordResetToken     *string
	PasswordResetExpiresAt *time.Time
	LastPasswordChangeAt   *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
	DeletedAt   *time.Time
}

// NormalizeEmail trims and lower-cases an address. Every lookup and every
// uniqueness check uses the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount builds an account awaiting email verification.
func NewAccount(id, email, passwordHash, firstName, lastName string, role Role, verificationToken string, now time.Time) *Account {
	return &Account{
		ID:                     id,
		Email:                  NormalizeEmail(email),
		PasswordHash:           passwordHash,
		FirstName:              strings.TrimSpace(firstName),
		LastName:               strings.TrimSpace(lastName),
		Role:                   role,
		Status:                 StatusPendingVerification,
		EmailVerificationToken: &verificationToken,
		LastPasswordChangeAt:   &now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// IsDeleted reports whether the account has been soft-deleted.
func (a *Account) IsDeleted() bool {
	return a.Status == StatusDeleted || a.DeletedAt != nil
}

// IsActive reports whether the account is active, verified and not deleted.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive && a.EmailVerified && !a.IsDeleted()
}

// IsLocked reports whether a lockout window is in force at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.Lockout().Locked(now)
}

// Lockout returns the account's lockout state.
func (a *Account) Lockout() Lockout {
	return Lockout{FailedAttempts: a.FailedLoginAttempts, LockedUntil: a.LockedUntil}
}

// ApplyLockout stores l on the account.
func (a *Account) ApplyLockout(l Lockout, now time.Time) {
	a.FailedLoginAttempts = l.FailedAttempts
	a.LockedUntil = l.LockedUntil
	a.UpdatedAt = now
}

// RecordLogin resets the lockout state and stamps the login time.
func (a *Account) RecordLogin(now time.Time) {
	a.ApplyLockout(Lockout{}, now)
	a.LastLoginAt = &now
}

// VerifyEmail marks the address verified, clears the verification token and
// activates a pending account.
func (a *Account) VerifyEmail(now time.Time) {
	a.EmailVerified = true
	a.EmailVerificationToken = nil
	if a.Status == StatusPendingVerification {
		a.Status = StatusActive
	}
	a.UpdatedAt = now
}

// MarkDeleted soft-deletes the account. It is idempotent.
func (a *Account) MarkDeleted(now time.Time) {
	if a.Status == StatusDeleted && a.DeletedAt != nil {
		return
	}
	a.Status = StatusDeleted
	if a.DeletedAt == nil {
		a.DeletedAt = &now
	}
	a.UpdatedAt = now
}

// Profile is the public view of an account. It never carries credentials or
// tokens.
type Profile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Role          string     `json:"role"`
	Status        Status     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// Profile returns the public view of a.
func (a *Account) Profile() Profile {
	return Profile{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Role:          a.Role.Name,
		Status:        a.Status,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		LastLoginAt:   a.LastLoginAt,
	}
}
