package models

import "time"

// AttemptRecord tracks failed logins for one identity/IP pair.
type AttemptRecord struct {
	FailureCount   int           `json:"failure_count"`
	FirstFailureAt *time.Time    `json:"first_failure_at,omitempty"`
	LockUntil      *time.Time    `json:"lock_until,omitempty"`
	Window         time.Duration `json:"window"`
}

// Stale reports whether the record no longer carries weight at now: either
// its lock has run out or its rolling window has elapsed.
func (r *AttemptRecord) Stale(now time.Time) bool {
	if r.LockUntil != nil {
		return !now.Before(*r.LockUntil)
	}
	if r.FirstFailureAt != nil && r.Window > 0 {
		return !now.Before(r.FirstFailureAt.Add(r.Window))
	}
	return false
}

// Locked reports whether the lock is still in force at now.
func (r *AttemptRecord) Locked(now time.Time) bool {
	return r.LockUntil != nil && now.Before(*r.LockUntil)
}

// ExpiresAt is the moment after which the record can be dropped.
func (r *AttemptRecord) ExpiresAt() time.Time {
	if r.LockUntil != nil {
		return *r.LockUntil
	}
	if r.FirstFailureAt != nil {
		return r.FirstFailureAt.Add(r.Window)
	}
	return time.Time{}
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (r *AttemptRecord) Clone() *AttemptRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.FirstFailureAt != nil {
		t := *r.FirstFailureAt
		c.FirstFailureAt = &t
	}
	if r.LockUntil != nil {
		t := *r.LockUntil
		c.LockUntil = &t
	}
	return &c
}
