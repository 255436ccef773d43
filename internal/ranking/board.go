// Package ranking holds the in-memory ranking index: one Board per
// leaderboard partition, kept in a Registry.
//
// A Board orders entries by score desc, wins desc, player id asc in an
// indexable skip list, so rank lookups, page starts and neighbor windows are
// O(log n). Writers take the board lock exclusively; readers share it, so a
// read never sees a half-applied upsert.
package ranking

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

// Board is one ranking partition.
type Board struct {
	id     string
	limits Limits
	now    func() time.Time

	mu       sync.RWMutex
	entries  map[string]*domain.LeaderboardEntry
	index    *skipList
	capacity int
	version  uint64
}

func newBoard(id string, limits Limits, now func() time.Time) *Board {
	return &Board{
		id:      id,
		limits:  limits,
		now:     now,
		entries: make(map[string]*domain.LeaderboardEntry),
		index:   newSkipList(),
	}
}

// ID returns the partition key.
func (b *Board) ID() string {
	return b.id
}

// Len returns the number of entries.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.length
}

// Version increases on every mutation. Snapshots use it to skip clean boards.
func (b *Board) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// SetCapacity bounds the number of distinct players. Zero is unbounded.
// Existing entries are kept even when above the new capacity.
func (b *Board) SetCapacity(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = max(n, 0)
}

func entryAt(e *domain.LeaderboardEntry, rank int) domain.LeaderboardEntry {
	c := *e
	c.Rank = rank
	return c
}

// Upsert creates or updates a player's entry and returns its rank before and
// after. Derived fields are recomputed from the merged state.
func (b *Board) Upsert(playerID string, fields domain.EntryFields) (UpsertResult, error) {
	if playerID == "" {
		return UpsertResult{}, domainerrors.InvalidInput("player id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	old, exists := b.entries[playerID]
	if !exists && b.capacity > 0 && b.index.length >= b.capacity {
		return UpsertResult{}, domainerrors.PreconditionFailedf("leaderboard %s is full (%d entries)", b.id, b.capacity)
	}

	next := &domain.LeaderboardEntry{PlayerID: playerID}
	var previous *int
	if exists {
		c := *old
		next = &c
		r := b.index.rank(old)
		previous = &r
		b.index.remove(old)
	}

	fields.Apply(next)
	if next.LastActiveAt.IsZero() {
		next.LastActiveAt = b.now()
	}
	next.Rank = 0

	rank := b.index.insert(next)
	b.entries[playerID] = next
	b.version++

	return UpsertResult{
		Entry:        entryAt(next, rank),
		PreviousRank: previous,
		NewRank:      rank,
		Created:      !exists,
	}, nil
}

// Remove deletes a player. The returned entry carries its rank before removal.
func (b *Board) Remove(playerID string) (domain.LeaderboardEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[playerID]
	if !ok {
		return domain.LeaderboardEntry{}, b.notFound(playerID)
	}
	rank := b.index.rank(e)
	b.index.remove(e)
	delete(b.entries, playerID)
	b.version++

	return entryAt(e, rank), nil
}

// GetRank returns a player's entry with its current rank.
func (b *Board) GetRank(playerID string) (domain.LeaderboardEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[playerID]
	if !ok {
		return domain.LeaderboardEntry{}, b.notFound(playerID)
	}
	return entryAt(e, b.index.rank(e)), nil
}

// Entry returns a player's entry without computing its rank.
func (b *Board) Entry(playerID string) (domain.LeaderboardEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[playerID]
	if !ok {
		return domain.LeaderboardEntry{}, false
	}
	return *e, true
}

// GetPage returns one page. Score pages report the canonical rank; pages
// sorted by another field report the rank within that field's descending
// order. Ranks are computed over the whole partition, before filters.
func (b *Board) GetPage(q PageQuery) (Page, error) {
	if q.Sort == "" {
		q.Sort = SortScore
	}
	if q.Order == "" {
		q.Order = OrderDesc
	}
	if !q.Sort.Valid() {
		return Page{}, domainerrors.InvalidInputf("unsupported sort field %q", q.Sort)
	}
	if q.Order != OrderAsc && q.Order != OrderDesc {
		return Page{}, domainerrors.InvalidInputf("unsupported sort order %q", q.Order)
	}
	if q.Filters.MinScore != nil && q.Filters.MaxScore != nil && *q.Filters.MinScore > *q.Filters.MaxScore {
		return Page{}, domainerrors.InvalidInput("min score exceeds max score")
	}

	limit := b.limits.clampLimit(q.Limit)
	page := max(q.Page, 1)
	offset := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		data  []domain.LeaderboardEntry
		total int
	)
	if q.Sort == SortScore && q.Filters.empty() {
		total = b.index.length
		data = b.scoreWindow(offset, limit, q.Order)
	} else {
		all := b.rankedBy(q.Sort)
		matched := all[:0]
		for _, e := range all {
			if q.Filters.match(&e) {
				matched = append(matched, e)
			}
		}
		if q.Order == OrderAsc {
			slices.Reverse(matched)
		}
		total = len(matched)
		if offset < total {
			data = matched[offset:min(offset+limit, total)]
		}
	}
	if data == nil {
		data = []domain.LeaderboardEntry{}
	}

	totalPages := (total + limit - 1) / limit
	return Page{
		Data:       data,
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		Limit:      limit,
		HasMore:    page < totalPages,
	}, nil
}

// scoreWindow reads a page straight off the skip list. Caller holds the lock.
func (b *Board) scoreWindow(offset, limit int, order SortOrder) []domain.LeaderboardEntry {
	n := b.index.length
	if offset >= n {
		return nil
	}

	var from, to int
	if order == OrderDesc {
		from, to = offset+1, min(offset+limit, n)
	} else {
		from, to = max(n-offset-limit+1, 1), n-offset
	}

	out := make([]domain.LeaderboardEntry, 0, to-from+1)
	b.index.walk(from, func(rank int, e *domain.LeaderboardEntry) bool {
		out = append(out, entryAt(e, rank))
		return rank < to
	})
	if order == OrderAsc {
		slices.Reverse(out)
	}
	return out
}

// rankedBy returns every entry in the descending order of field with its
// field-specific rank. Caller holds the lock.
func (b *Board) rankedBy(field SortField) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, b.index.length)
	b.index.walk(1, func(rank int, e *domain.LeaderboardEntry) bool {
		out = append(out, entryAt(e, rank))
		return true
	})
	if field == SortScore {
		return out
	}

	// Stable sort keeps the canonical order as the tiebreak.
	slices.SortStableFunc(out, func(a, c domain.LeaderboardEntry) int {
		switch field {
		case SortWins:
			return cmp.Compare(c.Wins, a.Wins)
		case SortMMR:
			return cmp.Compare(c.MMR, a.MMR)
		case SortLastActive:
			return c.LastActiveAt.Compare(a.LastActiveAt)
		}
		return 0
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// TopN returns the best n entries, capped at MaxTopN and the partition size.
func (b *Board) TopN(n int) ([]domain.LeaderboardEntry, error) {
	if n < 0 {
		return nil, domainerrors.InvalidInput("n must not be negative")
	}
	n = min(n, b.limits.MaxTopN)

	b.mu.RLock()
	defer b.mu.RUnlock()

	n = min(n, b.index.length)
	out := make([]domain.LeaderboardEntry, 0, n)
	if n == 0 {
		return out, nil
	}
	b.index.walk(1, func(rank int, e *domain.LeaderboardEntry) bool {
		out = append(out, entryAt(e, rank))
		return rank < n
	})
	return out, nil
}

// GetContext returns the player with up to window neighbors on each side,
// truncated at the partition edges.
func (b *Board) GetContext(playerID string, window int) (Context, error) {
	if window < 0 {
		return Context{}, domainerrors.InvalidInput("window must not be negative")
	}
	window = min(window, b.limits.MaxContextWindow)

	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[playerID]
	if !ok {
		return Context{}, b.notFound(playerID)
	}
	rank := b.index.rank(e)

	ctx := Context{
		Player: entryAt(e, rank),
		Above:  []domain.LeaderboardEntry{},
		Below:  []domain.LeaderboardEntry{},
	}
	if window == 0 {
		return ctx, nil
	}

	from := max(rank-window, 1)
	to := min(rank+window, b.index.length)
	b.index.walk(from, func(r int, n *domain.LeaderboardEntry) bool {
		switch {
		case r < rank:
			ctx.Above = append(ctx.Above, entryAt(n, r))
		case r > rank:
			ctx.Below = append(ctx.Below, entryAt(n, r))
		}
		return r < to
	})
	return ctx, nil
}

// foldName normalizes a display name for case-insensitive matching.
func foldName(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// SearchByName returns entries whose name contains query, ignoring case, in
// rank order and capped at MaxPageSize.
func (b *Board) SearchByName(query string) ([]domain.LeaderboardEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domainerrors.InvalidInput("search query is required")
	}
	needle := foldName(query)

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := []domain.LeaderboardEntry{}
	b.index.walk(1, func(rank int, e *domain.LeaderboardEntry) bool {
		if strings.Contains(foldName(e.PlayerName), needle) {
			out = append(out, entryAt(e, rank))
		}
		return len(out) < b.limits.MaxPageSize
	})
	return out, nil
}

// Statistics summarises scores across the whole partition.
func (b *Board) Statistics() Statistics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.index.length
	if n == 0 {
		return Statistics{}
	}

	var (
		sum    float64
		median float64
		stats  = Statistics{TotalPlayers: n}
		lo, hi = (n + 1) / 2, (n + 2) / 2 // middle ranks; equal when n is odd
	)
	b.index.walk(1, func(rank int, e *domain.LeaderboardEntry) bool {
		sum += float64(e.Score)
		if rank == 1 {
			stats.HighestScore = e.Score
		}
		if rank == n {
			stats.LowestScore = e.Score
		}
		if rank == lo || rank == hi {
			median += float64(e.Score)
		}
		return true
	})

	if lo == hi {
		stats.MedianScore = median
	} else {
		stats.MedianScore = median / 2
	}
	stats.AverageScore = sum / float64(n)
	return stats
}

// Reset removes every entry and returns how many were removed.
func (b *Board) Reset() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.index.length
	b.entries = make(map[string]*domain.LeaderboardEntry)
	b.index.reset()
	b.version++
	return n
}

// Snapshot returns every entry in rank order with the version it reflects.
func (b *Board) Snapshot() ([]domain.LeaderboardEntry, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.LeaderboardEntry, 0, b.index.length)
	b.index.walk(1, func(rank int, e *domain.LeaderboardEntry) bool {
		out = append(out, entryAt(e, rank))
		return true
	})
	return out, b.version
}

// Load replaces the board's contents with entries, recomputing derived fields.
func (b *Board) Load(entries []domain.LeaderboardEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]*domain.LeaderboardEntry, len(entries))
	b.index.reset()
	for _, e := range entries {
		if e.PlayerID == "" {
			continue
		}
		if old, ok := b.entries[e.PlayerID]; ok {
			b.index.remove(old)
		}
		c := e
		c.Rank = 0
		c.Derive()
		b.index.insert(&c)
		b.entries[c.PlayerID] = &c
	}
}

func (b *Board) notFound(playerID string) error {
	return domainerrors.NotFoundf("player %s not found on leaderboard %s", playerID, b.id)
}
