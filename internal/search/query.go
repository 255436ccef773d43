package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a player search.
type SearchParams struct {
	Query string // Name fragment or exact player id

	// Filters
	LeaderboardID string
	Region        string
	Tier          string

	// Pagination
	Limit  int
	Offset int
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{Limit: 20}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is one matching (leaderboard, player) document.
type SearchHit struct {
	LeaderboardID string  `json:"leaderboard_id"`
	PlayerID      string  `json:"player_id"`
	PlayerName    string  `json:"player_name"`
	Region        string  `json:"region,omitempty"`
	Tier          string  `json:"tier"`
	Score         int64   `json:"score"`
	MMR           int     `json:"mmr"`
	Relevance     float64 `json:"relevance"`
}

// Search executes a player query. Results are ordered by relevance, then
// score.
func (s *PlayerIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	req.SortBy([]string{"-_score", "-score", "player_id"})
	req.Fields = []string{"leaderboard_id", "player_id", "player_name", "region", "tier", "score", "mmr"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}

	for _, hit := range res.Hits {
		h := SearchHit{Relevance: hit.Score}
		if v, ok := hit.Fields["leaderboard_id"].(string); ok {
			h.LeaderboardID = v
		}
		if v, ok := hit.Fields["player_id"].(string); ok {
			h.PlayerID = v
		}
		if v, ok := hit.Fields["player_name"].(string); ok {
			h.PlayerName = v
		}
		if v, ok := hit.Fields["region"].(string); ok {
			h.Region = v
		}
		if v, ok := hit.Fields["tier"].(string); ok {
			h.Tier = v
		}
		if v, ok := hit.Fields["score"].(float64); ok {
			h.Score = int64(v)
		}
		if v, ok := hit.Fields["mmr"].(float64); ok {
			h.MMR = int(v)
		}
		result.Hits = append(result.Hits, h)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if q := strings.TrimSpace(params.Query); q != "" {
		lower := strings.ToLower(q)

		nameMatch := bleve.NewMatchQuery(q)
		nameMatch.SetField("player_name")
		nameMatch.SetBoost(3.0)

		// Typo tolerance on names.
		fuzzy := bleve.NewFuzzyQuery(lower)
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("player_name")
		fuzzy.SetBoost(0.8)

		// Prefix for autocomplete.
		prefix := bleve.NewPrefixQuery(lower)
		prefix.SetField("player_name")
		prefix.SetBoost(0.5)

		exactID := bleve.NewTermQuery(q)
		exactID.SetField("player_id")
		exactID.SetBoost(5.0)

		queries = append(queries, bleve.NewDisjunctionQuery(nameMatch, fuzzy, prefix, exactID))
	}

	for field, value := range map[string]string{
		"leaderboard_id": params.LeaderboardID,
		"region":         params.Region,
		"tier":           params.Tier,
	} {
		if value == "" {
			continue
		}
		tq := bleve.NewTermQuery(value)
		tq.SetField(field)
		queries = append(queries, tq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
