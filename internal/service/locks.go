package service

import "sync"

// Locks hands out one mutex per session. Anything that rewrites a session's
// live state or order sets holds it, so a turn result, a reset and an order
// submission never interleave.
type Locks struct {
	m sync.Map
}

func NewLocks() *Locks { return &Locks{} }

// For returns the session's mutex, creating it on first use.
func (l *Locks) For(sessionID string) *sync.Mutex {
	v, _ := l.m.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
