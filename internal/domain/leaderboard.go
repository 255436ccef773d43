package domain

import (
	"strings"
	"time"
)

// LeaderboardStatus gates mutations on a partition.
type LeaderboardStatus string

const (
	LeaderboardActive   LeaderboardStatus = "ACTIVE"
	LeaderboardLocked   LeaderboardStatus = "LOCKED"
	LeaderboardInactive LeaderboardStatus = "INACTIVE"
)

// Valid checks if the status is known.
func (s LeaderboardStatus) Valid() bool {
	switch s {
	case LeaderboardActive, LeaderboardLocked, LeaderboardInactive:
		return true
	default:
		return false
	}
}

// Leaderboard is the metadata of one ranking partition. Regional and seasonal
// boards are ordinary leaderboards whose ID comes from PartitionKey.
type Leaderboard struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Region      string            `json:"region,omitempty"`
	Season      string            `json:"season,omitempty"`
	Status      LeaderboardStatus `json:"status"`
	MaxEntries  int               `json:"max_entries,omitempty"` // 0 means unbounded
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// AcceptsWrites reports whether entries may be added, changed or removed.
func (l *Leaderboard) AcceptsWrites() bool {
	return l.Status == LeaderboardActive
}

// IsFull reports whether a new player would exceed MaxEntries.
func (l *Leaderboard) IsFull(size int) bool {
	return l.MaxEntries > 0 && size >= l.MaxEntries
}

// PartitionKey derives the board ID for a regional and/or seasonal variant of
// base. Empty parts are skipped, so PartitionKey("global", "", "") == "global".
func PartitionKey(base, region, season string) string {
	parts := []string{base}
	if region != "" {
		parts = append(parts, strings.ToLower(region))
	}
	if season != "" {
		parts = append(parts, strings.ToLower(season))
	}
	return strings.Join(parts, ":")
}
