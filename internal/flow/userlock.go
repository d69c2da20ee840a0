package flow

import "sync"

// userLocks provides a per-user advisory mutex so the read-state →
// compute-next-state → persist-state sequence is linearizable per user.
// Two near-simultaneous messages from the same user would otherwise race on
// the profile read-modify-write and lose an update.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given user, creating it on first use.
// Locks are never removed; the user population is bounded by the store.
func (ul *userLocks) Lock(userID string) {
	ul.mu.Lock()
	l, ok := ul.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		ul.locks[userID] = l
	}
	ul.mu.Unlock()
	l.Lock()
}

// Unlock releases the mutex for the given user.
func (ul *userLocks) Unlock(userID string) {
	ul.mu.Lock()
	l := ul.locks[userID]
	ul.mu.Unlock()
	if l != nil {
		l.Unlock()
	}
}
