package domain

import "time"

// Lockout is the brute-force state of one account.
type Lockout struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Locked reports whether the lock is in force at now. A lock whose time has
// passed is treated as unlocked without being cleared.
func (l Lockout) Locked(now time.Time) bool {
	return l.LockedUntil != nil && !now.After(*l.LockedUntil)
}

// LockoutPolicy decides lockout transitions. It is a pure value.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy locks for 15 minutes after 5 failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 15 * time.Minute}
}

// OnFailure returns the state after a failed login at now. A lock still in
// force is returned unchanged; otherwise the counter grows and the account
// locks once it reaches MaxAttempts.
func (p LockoutPolicy) OnFailure(l Lockout, now time.Time) Lockout {
	if l.Locked(now) {
		return l
	}
	next := Lockout{FailedAttempts: l.FailedAttempts + 1}
	if next.FailedAttempts >= p.MaxAttempts {
		until := now.Add(p.Duration)
		next.LockedUntil = &until
	}
	return next
}

// OnSuccess returns the state after a successful login.
func (p LockoutPolicy) OnSuccess() Lockout {
	return Lockout{}
}
