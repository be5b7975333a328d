package domain

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/intelliguard/intelliguard/pkg/errors"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAccount() *Account {
	return NewAccount("u-1", "  A@X.com ", "hash", " Ada ", "Lovelace", Role{ID: 1, Name: RoleViewer}, "verify-me", t0)
}

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

func TestNewAccount(t *testing.T) {
	a := newTestAccount()

	assert.Equal(t, "a@x.com", a.Email)
	assert.Equal(t, "Ada", a.FirstName)
	assert.Equal(t, StatusPendingVerification, a.Status)
	assert.False(t, a.EmailVerified)
	require.NotNil(t, a.EmailVerificationToken)
	assert.Equal(t, "verify-me", *a.EmailVerificationToken)
	assert.Zero(t, a.FailedLoginAttempts)
	assert.Nil(t, a.LockedUntil)
	assert.Equal(t, t0, a.CreatedAt)
	assert.Equal(t, t0, a.UpdatedAt)
	assert.False(t, a.IsActive())
}

func TestAccount_IsActive_AllCombinations(t *testing.T) {
	statuses := []Status{StatusPendingVerification, StatusActive, StatusSuspended, StatusDeleted}
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		a := newTestAccount()
		a.Status = statuses[r.IntN(len(statuses))]
		a.EmailVerified = r.IntN(2) == 1
		a.DeletedAt = nil
		if r.IntN(2) == 1 {
			a.DeletedAt = &t0
		}

		deleted := a.Status == StatusDeleted || a.DeletedAt != nil
		want := a.Status == StatusActive && a.EmailVerified && !deleted
		assert.Equal(t, deleted, a.IsDeleted(), "status=%s deleted_at=%v", a.Status, a.DeletedAt)
		assert.Equal(t, want, a.IsActive(), "status=%s verified=%v deleted_at=%v", a.Status, a.EmailVerified, a.DeletedAt)
	}
}

func TestAccount_DeletedAtAloneMeansDeleted(t *testing.T) {
	a := newTestAccount()
	a.VerifyEmail(t0)
	require.True(t, a.IsActive())

	a.DeletedAt = &t0
	assert.Equal(t, StatusActive, a.Status)
	assert.True(t, a.IsDeleted())
	assert.False(t, a.IsActive())

	later := t0.Add(time.Hour)
	a.MarkDeleted(later)
	assert.Equal(t, StatusDeleted, a.Status, "the status catches up with deleted_at")
	assert.Equal(t, t0, *a.DeletedAt)
	assert.Equal(t, later, a.UpdatedAt)
}

func TestAccount_MarkDeleted_KeepsFieldsConsistent(t *testing.T) {
	a := newTestAccount()
	a.VerifyEmail(t0)
	require.True(t, a.IsActive())

	later := t0.Add(time.Hour)
	a.MarkDeleted(later)
	assert.Equal(t, StatusDeleted, a.Status)
	require.NotNil(t, a.DeletedAt)
	assert.Equal(t, later, *a.DeletedAt)
	assert.True(t, a.IsDeleted())
	assert.False(t, a.IsActive())

	a.MarkDeleted(later.Add(time.Hour))
	assert.Equal(t, later, *a.DeletedAt, "second delete must not move the marker")
}

func TestAccount_VerifyEmail(t *testing.T) {
	a := newTestAccount()
	a.VerifyEmail(t0.Add(time.Minute))

	assert.True(t, a.EmailVerified)
	assert.Nil(t, a.EmailVerificationToken)
	assert.Equal(t, StatusActive, a.Status)
	assert.True(t, a.IsActive())

	s := newTestAccount()
	s.Status = StatusSuspended
	s.VerifyEmail(t0)
	assert.Equal(t, StatusSuspended, s.Status)
}

func TestAccount_RecordLogin(t *testing.T) {
	a := newTestAccount()
	until := t0.Add(time.Minute)
	a.ApplyLockout(Lockout{FailedAttempts: 5, LockedUntil: &until}, t0)

	now := t0.Add(time.Hour)
	a.RecordLogin(now)
	assert.Zero(t, a.FailedLoginAttempts)
	assert.Nil(t, a.LockedUntil)
	require.NotNil(t, a.LastLoginAt)
	assert.Equal(t, now, *a.LastLoginAt)
}

func TestAccount_Profile_OmitsSecrets(t *testing.T) {
	p := newTestAccount().Profile()
	assert.Equal(t, "u-1", p.ID)
	assert.Equal(t, RoleViewer, p.Role)
	assert.Equal(t, StatusPendingVerification, p.Status)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus(" active ")
	assert.True(t, ok)
	assert.Equal(t, StatusActive, s)

	_, ok = ParseStatus("BANNED")
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// LockoutPolicy
// ---------------------------------------------------------------------------

func TestLockoutPolicy_FiveFailuresLockForFifteenMinutes(t *testing.T) {
	p := DefaultLockoutPolicy()
	var l Lockout

	for i := 1; i <= 4; i++ {
		l = p.OnFailure(l, t0)
		assert.Equal(t, i, l.FailedAttempts)
		assert.False(t, l.Locked(t0))
	}

	fifth := t0.Add(30 * time.Second)
	l = p.OnFailure(l, fifth)
	assert.Equal(t, 5, l.FailedAttempts)
	require.NotNil(t, l.LockedUntil)
	assert.Equal(t, fifth.Add(15*time.Minute), *l.LockedUntil)
	assert.True(t, l.Locked(fifth.Add(15*time.Minute)))
	assert.False(t, l.Locked(fifth.Add(15*time.Minute+time.Nanosecond)))
}

func TestLockoutPolicy_FailureWhileLockedDoesNotCount(t *testing.T) {
	p := DefaultLockoutPolicy()
	until := t0.Add(10 * time.Minute)
	l := Lockout{FailedAttempts: 5, LockedUntil: &until}

	assert.Equal(t, l, p.OnFailure(l, t0.Add(time.Minute)))
}

func TestLockoutPolicy_FailureAfterExpiryRelocks(t *testing.T) {
	p := DefaultLockoutPolicy()
	until := t0
	l := Lockout{FailedAttempts: 5, LockedUntil: &until}

	now := t0.Add(time.Minute)
	next := p.OnFailure(l, now)
	assert.Equal(t, 6, next.FailedAttempts)
	require.NotNil(t, next.LockedUntil)
	assert.Equal(t, now.Add(15*time.Minute), *next.LockedUntil)
}

func TestLockoutPolicy_OnSuccessResets(t *testing.T) {
	assert.Equal(t, Lockout{}, DefaultLockoutPolicy().OnSuccess())
}

// ---------------------------------------------------------------------------
// RefreshToken
// ---------------------------------------------------------------------------

func TestRefreshToken_Validity(t *testing.T) {
	rt := NewRefreshToken("t-1", "u-1", "opaque", t0, time.Hour)

	assert.Equal(t, HashToken("opaque"), rt.TokenHash)
	assert.NotEqual(t, "opaque", rt.TokenHash)
	assert.True(t, rt.Valid(t0))
	assert.False(t, rt.Valid(t0.Add(time.Hour)), "expiry instant is already invalid")
}

func TestRefreshToken_ValidityIsMonotonic(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		rt := NewRefreshToken("t", "u", "v", t0, time.Duration(1+r.IntN(120))*time.Minute)
		revokeAt := t0.Add(time.Duration(r.IntN(180)) * time.Minute)

		invalidSeen := false
		for m := 0; m <= 240; m += 5 {
			now := t0.Add(time.Duration(m) * time.Minute)
			if !now.Before(revokeAt) {
				rt.Revoke(now)
			}
			if invalidSeen {
				require.False(t, rt.Valid(now), "token became valid again at +%dm", m)
			}
			if !rt.Valid(now) {
				invalidSeen = true
			}
		}
	}
}

func TestRefreshToken_RevokeIsSetOnce(t *testing.T) {
	rt := NewRefreshToken("t-1", "u-1", "opaque", t0, time.Hour)
	rt.Revoke(t0.Add(time.Minute))
	rt.Revoke(t0.Add(2 * time.Minute))

	assert.True(t, rt.Revoked)
	assert.Equal(t, t0.Add(time.Minute), *rt.RevokedAt)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err      *apperrors.AppError
		code     string
		status   int
		sentinel error
		shared   error
	}{
		{DuplicateAccount(), CodeDuplicateAccount, http.StatusConflict, ErrDuplicateAccount, apperrors.ErrAlreadyExists},
		{InvalidCredentials(), CodeInvalidCredentials, http.StatusUnauthorized, ErrInvalidCredentials, apperrors.ErrUnauthorized},
		{AccountLocked(t0), CodeAccountLocked, http.StatusLocked, ErrAccountLocked, apperrors.ErrLocked},
		{AccountDeleted(), CodeAccountDeleted, http.StatusForbidden, ErrAccountDeleted, apperrors.ErrForbidden},
		{InvalidRefreshToken(), CodeInvalidRefreshToken, http.StatusUnauthorized, ErrInvalidRefreshToken, apperrors.ErrUnauthorized},
		{ConfigurationError(errors.New("role VIEWER missing")), CodeConfiguration, http.StatusInternalServerError, ErrConfiguration, apperrors.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, apperrors.HTTPStatus(tt.err))
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.ErrorIs(t, tt.err, tt.shared)
		})
	}
}

func TestAccountLocked_Details(t *testing.T) {
	err := AccountLocked(t0.Add(15 * time.Minute))
	assert.Equal(t, "2026-03-01T12:15:00Z", err.Details["locked_until"])
}

func TestConfigurationError_HidesCause(t *testing.T) {
	err := ConfigurationError(errors.New("role VIEWER missing"))
	assert.NotContains(t, err.Message, "VIEWER")
	assert.Contains(t, err.Error(), "VIEWER")
}
