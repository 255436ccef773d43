package service

import "sync"

// boardLocks serializes writers per leaderboard. Different boards never
// contend. Entries are dropped when the last holder releases them.
type boardLocks struct {
	mu    sync.Mutex
	locks map[string]*boardLock
}

type boardLock struct {
	sync.Mutex
	refs int
}

func newBoardLocks() *boardLocks {
	return &boardLocks{locks: make(map[string]*boardLock)}
}

// lock blocks until the board is free and returns the release func.
func (l *boardLocks) lock(leaderboardID string) func() {
	l.mu.Lock()
	bl, ok := l.locks[leaderboardID]
	if !ok {
		bl = &boardLock{}
		l.locks[leaderboardID] = bl
	}
	bl.refs++
	l.mu.Unlock()

	bl.Lock()
	return func() {
		bl.Unlock()

		l.mu.Lock()
		bl.refs--
		if bl.refs == 0 {
			delete(l.locks, leaderboardID)
		}
		l.mu.Unlock()
	}
}
