package domain

import "time"

// Lease is a named row representing a distributed lock. The (Owner,
// LockedAt) pair together form the lease identity and double as a
// fencing token: a holder whose lease expired cannot Confirm once another
// owner has acquired it, because LockedAt will no longer match what it
// last observed.
type Lease struct {
	Name     string
	Owner    string
	LockedAt time.Time
}

// Held reports whether the lease is currently owned by anyone, as opposed
// to the released state (Owner == "").
func (l *Lease) Held() bool {
	return l != nil && l.Owner != ""
}
