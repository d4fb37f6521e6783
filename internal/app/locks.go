package app

import "sync"

// accountLocks hands out one mutex per user identity so trades against the
// same account execute serially while different accounts proceed
// independently. Locks are never released; the set of users is small and
// bounded in practice.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for the given user, creating it on first use.
func (a *accountLocks) get(userIdentifier string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.locks[userIdentifier]
	if !ok {
		m = &sync.Mutex{}
		a.locks[userIdentifier] = m
	}
	return m
}
