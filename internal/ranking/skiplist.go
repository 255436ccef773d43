package ranking

import (
	"math/rand/v2"

	"github.com/ladderline/ladder-server/internal/domain"
)

const (
	maxLevel = 32
	// 1 in levelFactor nodes is promoted to the next level.
	levelFactor = 4
)

// link points to the next node on one level. span counts how many level-0
// steps the link jumps, which makes rank lookups O(log n).
type link struct {
	node *node
	span int
}

type node struct {
	entry *domain.LeaderboardEntry
	next  []link
}

// skipList is an indexable skip list ordered by LeaderboardEntry.Less.
// Entries must not be mutated while linked; remove, change, re-insert.
type skipList struct {
	head   *node
	level  int
	length int
}

func newSkipList() *skipList {
	return &skipList{
		head:  &node{next: make([]link, maxLevel)},
		level: 1,
	}
}

func randomLevel() int {
	lvl := 1
	for lvl < maxLevel && rand.IntN(levelFactor) == 0 {
		lvl++
	}
	return lvl
}

// insert links e and returns its 1-based rank.
func (s *skipList) insert(e *domain.LeaderboardEntry) int {
	var update [maxLevel]*node
	var rank [maxLevel]int

	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		if i < s.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i].node != nil && x.next[i].node.entry.Less(e) {
			rank[i] += x.next[i].span
			x = x.next[i].node
		}
		update[i] = x
	}

	lvl := randomLevel()
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = s.head
			update[i].next[i].span = s.length
		}
		s.level = lvl
	}

	n := &node{entry: e, next: make([]link, lvl)}
	for i := range lvl {
		n.next[i].node = update[i].next[i].node
		update[i].next[i].node = n
		n.next[i].span = update[i].next[i].span - (rank[0] - rank[i])
		update[i].next[i].span = rank[0] - rank[i] + 1
	}
	for i := lvl; i < s.level; i++ {
		update[i].next[i].span++
	}

	s.length++
	return rank[0] + 1
}

// remove unlinks the node holding e. It reports false if e is not linked.
func (s *skipList) remove(e *domain.LeaderboardEntry) bool {
	var update [maxLevel]*node

	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.next[i].node != nil && x.next[i].node.entry.Less(e) {
			x = x.next[i].node
		}
		update[i] = x
	}

	target := x.next[0].node
	if target == nil || target.entry.PlayerID != e.PlayerID {
		return false
	}

	for i := range s.level {
		if update[i].next[i].node == target {
			update[i].next[i].span += target.next[i].span - 1
			update[i].next[i].node = target.next[i].node
		} else {
			update[i].next[i].span--
		}
	}
	for s.level > 1 && s.head.next[s.level-1].node == nil {
		s.level--
	}
	s.length--
	return true
}

// rank returns the 1-based rank of e, or 0 if e is not linked.
func (s *skipList) rank(e *domain.LeaderboardEntry) int {
	r := 0
	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.next[i].node != nil && !e.Less(x.next[i].node.entry) {
			r += x.next[i].span
			x = x.next[i].node
		}
		if x.entry != nil && x.entry.PlayerID == e.PlayerID {
			return r
		}
	}
	return 0
}

// at returns the node at 1-based rank r, or nil when out of range.
func (s *skipList) at(r int) *node {
	if r < 1 || r > s.length {
		return nil
	}
	traversed := 0
	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.next[i].node != nil && traversed+x.next[i].span <= r {
			traversed += x.next[i].span
			x = x.next[i].node
		}
		if traversed == r {
			return x
		}
	}
	return nil
}

// walk calls fn for each entry from rank `from` onward, in rank order,
// until fn returns false.
func (s *skipList) walk(from int, fn func(rank int, e *domain.LeaderboardEntry) bool) {
	n := s.at(from)
	for r := from; n != nil; r++ {
		if !fn(r, n.entry) {
			return
		}
		n = n.next[0].node
	}
}

func (s *skipList) reset() {
	s.head = &node{next: make([]link, maxLevel)}
	s.level = 1
	s.length = 0
}
