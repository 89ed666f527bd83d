package service

import "sync"

// accountLocker hands out one mutex per account id. Entries are reference
// counted and dropped when the last holder unlocks.
type accountLocker struct {
	mu    sync.Mutex
	locks map[int64]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocker() *accountLocker {
	return &accountLocker{locks: make(map[int64]*accountLock)}
}

// Lock blocks until the account's lock is held and returns its release func
func (l *accountLocker) Lock(accountID int64) func() {
	l.mu.Lock()
	lk, ok := l.locks[accountID]
	if !ok {
		lk = &accountLock{}
		l.locks[accountID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, accountID)
		}
		l.mu.Unlock()
	}
}
