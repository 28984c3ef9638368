package tracker

import (
	"sync"

	"github.com/warp/harm-index/harm"
)

// userLocks hands out one mutex per user, dropping it when no one holds it.
type userLocks struct {
	mu    sync.Mutex
	locks map[harm.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[harm.UserID]*userLock)}
}

// lock blocks until userID's lock is held and returns its release func.
func (l *userLocks) lock(userID harm.UserID) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
