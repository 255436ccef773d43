package domain

import "time"

// LeaderboardEntry is one player's row in a partition.
// Tier, Division, WinRate and Rank are derived; Rank is filled at query time.
type LeaderboardEntry struct {
	PlayerID     string    `json:"player_id"`
	PlayerName   string    `json:"player_name"`
	PlayerAvatar string    `json:"player_avatar,omitempty"`
	Region       string    `json:"region,omitempty"`
	Score        int64     `json:"score"`
	MMR          int       `json:"mmr"`
	Tier         Tier      `json:"tier"`
	Division     Division  `json:"division,omitempty"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	GamesPlayed  int       `json:"games_played"`
	WinRate      float64   `json:"win_rate"`
	Rank         int       `json:"rank"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// EntryFields is the writable part of an entry. Nil pointers keep the current
// value on update (or the zero value on insert).
type EntryFields struct {
	PlayerName   *string
	PlayerAvatar *string
	Region       *string
	Score        *int64
	MMR          *int
	Wins         *int
	Losses       *int
	GamesPlayed  *int
	LastActiveAt time.Time
}

// Apply writes fields onto e and recomputes the derived values.
func (f EntryFields) Apply(e *LeaderboardEntry) {
	if f.PlayerName != nil {
		e.PlayerName = *f.PlayerName
	}
	if f.PlayerAvatar != nil {
		e.PlayerAvatar = *f.PlayerAvatar
	}
	if f.Region != nil {
		e.Region = *f.Region
	}
	if f.Score != nil {
		e.Score = *f.Score
	}
	if f.MMR != nil {
		e.MMR = *f.MMR
	}
	if f.Wins != nil {
		e.Wins = *f.Wins
	}
	if f.Losses != nil {
		e.Losses = *f.Losses
	}
	if f.GamesPlayed != nil {
		e.GamesPlayed = *f.GamesPlayed
	}
	if !f.LastActiveAt.IsZero() {
		e.LastActiveAt = f.LastActiveAt
	}
	e.Derive()
}

// Derive recomputes tier, division and win rate.
func (e *LeaderboardEntry) Derive() {
	if e.GamesPlayed < e.Wins+e.Losses {
		e.GamesPlayed = e.Wins + e.Losses
	}
	if e.GamesPlayed > 0 {
		e.WinRate = float64(e.Wins) / float64(e.GamesPlayed)
	} else {
		e.WinRate = 0
	}
	e.Tier, e.Division = TierFor(e.MMR)
}

// Fields returns the writable state of e, the inverse of Apply.
func (e *LeaderboardEntry) Fields() EntryFields {
	c := *e
	return EntryFields{
		PlayerName:   &c.PlayerName,
		PlayerAvatar: &c.PlayerAvatar,
		Region:       &c.Region,
		Score:        &c.Score,
		MMR:          &c.MMR,
		Wins:         &c.Wins,
		Losses:       &c.Losses,
		GamesPlayed:  &c.GamesPlayed,
		LastActiveAt: c.LastActiveAt,
	}
}

// Less is the canonical rank order: score desc, wins desc, player id asc.
func (e *LeaderboardEntry) Less(o *LeaderboardEntry) bool {
	if e.Score != o.Score {
		return e.Score > o.Score
	}
	if e.Wins != o.Wins {
		return e.Wins > o.Wins
	}
	return e.PlayerID < o.PlayerID
}
