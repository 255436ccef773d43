// Package search provides the cross-leaderboard player directory using Bleve.
// Every (leaderboard, player) pair is one document, so a player on several
// boards appears once per board, and hits can be filtered by board, region
// or tier.
package search

import (
	"github.com/ladderline/ladder-server/internal/domain"
)

// PlayerDocument is the indexed form of one leaderboard entry.
type PlayerDocument struct {
	ID            string  `json:"id"` // DocumentID(LeaderboardID, PlayerID)
	LeaderboardID string  `json:"leaderboard_id"`
	PlayerID      string  `json:"player_id"`
	PlayerName    string  `json:"player_name"`
	Region        string  `json:"region,omitempty"`
	Tier          string  `json:"tier"`
	Score         float64 `json:"score"`
	MMR           float64 `json:"mmr"`
}

// DocumentID joins a board and player into a document key.
func DocumentID(leaderboardID, playerID string) string {
	return leaderboardID + "/" + playerID
}

// NewPlayerDocument builds the document for an entry on a board.
func NewPlayerDocument(leaderboardID string, e *domain.LeaderboardEntry) *PlayerDocument {
	return &PlayerDocument{
		ID:            DocumentID(leaderboardID, e.PlayerID),
		LeaderboardID: leaderboardID,
		PlayerID:      e.PlayerID,
		PlayerName:    e.PlayerName,
		Region:        e.Region,
		Tier:          string(e.Tier),
		Score:         float64(e.Score),
		MMR:           float64(e.MMR),
	}
}

// ToMap converts the document to a map with the field names the mapping uses.
func (d *PlayerDocument) ToMap() map[string]any {
	return map[string]any{
		"leaderboard_id": d.LeaderboardID,
		"player_id":      d.PlayerID,
		"player_name":    d.PlayerName,
		"region":         d.Region,
		"tier":           d.Tier,
		"score":          d.Score,
		"mmr":            d.MMR,
	}
}
