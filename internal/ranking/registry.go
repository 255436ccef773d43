package ranking

import (
	"slices"
	"sync"
	"time"
)

// Registry owns every Board in the process, keyed by partition key.
// Boards are independent; the registry lock only guards the map.
type Registry struct {
	limits Limits
	now    func() time.Time

	mu     sync.RWMutex
	boards map[string]*Board
}

// NewRegistry creates an empty registry. Zero limits fall back to DefaultLimits.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		limits: limits.withDefaults(),
		now:    time.Now,
		boards: make(map[string]*Board),
	}
}

// SetClock overrides the time source used to stamp new entries.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Limits returns the effective query limits.
func (r *Registry) Limits() Limits {
	return r.limits
}

// Get returns the board for id.
func (r *Registry) Get(id string) (*Board, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[id]
	return b, ok
}

// Ensure returns the board for id, creating it if needed.
func (r *Registry) Ensure(id string) *Board {
	if b, ok := r.Get(id); ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[id]; ok {
		return b
	}
	b := newBoard(id, r.limits, func() time.Time { return r.clock()() })
	r.boards[id] = b
	return b
}

func (r *Registry) clock() func() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now
}

// Drop removes a board. Its entries are discarded.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boards, id)
}

// IDs returns the ids of every board, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.boards))
	for id := range r.boards {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
