package ranking

import (
	"github.com/ladderline/ladder-server/internal/domain"
)

// SortField selects the ordering of a page.
type SortField string

const (
	SortScore      SortField = "score"
	SortWins       SortField = "wins"
	SortMMR        SortField = "mmr"
	SortLastActive SortField = "last_active_at"
)

// Valid checks if the field is sortable.
func (f SortField) Valid() bool {
	switch f {
	case SortScore, SortWins, SortMMR, SortLastActive:
		return true
	default:
		return false
	}
}

// SortOrder is the display direction of a page.
type SortOrder string

const (
	OrderDesc SortOrder = "desc"
	OrderAsc  SortOrder = "asc"
)

// Filters narrows a page. Zero values do not filter.
type Filters struct {
	MinScore *int64
	MaxScore *int64
	Tier     domain.Tier
	Region   string
}

func (f Filters) empty() bool {
	return f.MinScore == nil && f.MaxScore == nil && f.Tier == "" && f.Region == ""
}

func (f Filters) match(e *domain.LeaderboardEntry) bool {
	if f.MinScore != nil && e.Score < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && e.Score > *f.MaxScore {
		return false
	}
	if f.Tier != "" && e.Tier != f.Tier {
		return false
	}
	if f.Region != "" && e.Region != f.Region {
		return false
	}
	return true
}

// PageQuery describes a getPage call. Page is 1-based.
type PageQuery struct {
	Sort    SortField
	Order   SortOrder
	Filters Filters
	Page    int
	Limit   int
}

// Page is one page of ranked entries.
type Page struct {
	Data       []domain.LeaderboardEntry `json:"data"`
	Total      int                       `json:"total"`
	TotalPages int                       `json:"total_pages"`
	Page       int                       `json:"page"`
	Limit      int                       `json:"limit"`
	HasMore    bool                      `json:"has_more"`
}

// UpsertResult reports an upsert. PreviousRank is nil for a new entry.
type UpsertResult struct {
	Entry        domain.LeaderboardEntry
	PreviousRank *int
	NewRank      int
	Created      bool
}

// Context is a player plus its rank neighbors.
type Context struct {
	Player domain.LeaderboardEntry   `json:"player"`
	Above  []domain.LeaderboardEntry `json:"above"`
	Below  []domain.LeaderboardEntry `json:"below"`
}

// Statistics summarises a partition. An empty partition yields zero values.
type Statistics struct {
	TotalPlayers int     `json:"total_players"`
	AverageScore float64 `json:"average_score"`
	HighestScore int64   `json:"highest_score"`
	LowestScore  int64   `json:"lowest_score"`
	MedianScore  float64 `json:"median_score"`
}

// Limits bounds query sizes for every board in a registry.
type Limits struct {
	DefaultPageSize  int
	MaxPageSize      int
	MaxTopN          int
	MaxContextWindow int
}

// DefaultLimits are used when a registry is built with zero limits.
var DefaultLimits = Limits{
	DefaultPageSize:  25,
	MaxPageSize:      100,
	MaxTopN:          100,
	MaxContextWindow: 25,
}

func (l Limits) withDefaults() Limits {
	if l.DefaultPageSize <= 0 {
		l.DefaultPageSize = DefaultLimits.DefaultPageSize
	}
	if l.MaxPageSize <= 0 {
		l.MaxPageSize = DefaultLimits.MaxPageSize
	}
	if l.MaxTopN <= 0 {
		l.MaxTopN = DefaultLimits.MaxTopN
	}
	if l.MaxContextWindow <= 0 {
		l.MaxContextWindow = DefaultLimits.MaxContextWindow
	}
	return l
}

// clampLimit applies the server-side page size bounds.
func (l Limits) clampLimit(limit int) int {
	if limit <= 0 {
		return l.DefaultPageSize
	}
	return min(limit, l.MaxPageSize)
}
