package hub

import (
	"time"

	"github.com/ladderline/ladder-server/internal/domain"
)

// EventType names a server-to-client event.
type EventType string

const (
	EventRankChange       EventType = "RANK_CHANGE"
	EventScoreUpdate      EventType = "SCORE_UPDATE"
	EventNewEntry         EventType = "NEW_ENTRY"
	EventEntryRemoved     EventType = "ENTRY_REMOVED"
	EventLeaderboardReset EventType = "LEADERBOARD_RESET"
	EventHeartbeat        EventType = "HEARTBEAT"
	EventError            EventType = "ERROR"
	EventSubscribed       EventType = "SUBSCRIBED"
	EventUnsubscribed     EventType = "UNSUBSCRIBED"
	EventWelcome          EventType = "WELCOME"
	EventAuthenticated    EventType = "AUTHENTICATED"
)

// Event is one message pushed to connections. Events with a LeaderboardID go
// to that board's subscribers; events without one go to every connection.
type Event struct {
	Type          EventType `json:"type"`
	LeaderboardID string    `json:"leaderboard_id,omitempty"`
	PlayerID      string    `json:"player_id,omitempty"`
	Data          any       `json:"data"`
	Timestamp     time.Time `json:"timestamp"`
}

// EntryChange is the payload of RANK_CHANGE, SCORE_UPDATE and NEW_ENTRY.
type EntryChange struct {
	Entry         domain.LeaderboardEntry `json:"entry"`
	PreviousRank  *int                    `json:"previous_rank"`
	NewRank       int                     `json:"new_rank"`
	PreviousScore *int64                  `json:"previous_score,omitempty"`
	SubmissionID  string                  `json:"submission_id,omitempty"`
}

// NewEntryChangeEvent picks NEW_ENTRY for a first entry, RANK_CHANGE when the
// rank moved and SCORE_UPDATE otherwise.
func NewEntryChangeEvent(leaderboardID string, change EntryChange) Event {
	t := EventScoreUpdate
	switch {
	case change.PreviousRank == nil:
		t = EventNewEntry
	case *change.PreviousRank != change.NewRank:
		t = EventRankChange
	}
	return Event{
		Type:          t,
		LeaderboardID: leaderboardID,
		PlayerID:      change.Entry.PlayerID,
		Data:          change,
		Timestamp:     time.Now(),
	}
}

// NewEntryRemovedEvent reports a player leaving a board.
func NewEntryRemovedEvent(leaderboardID, playerID string, rank int) Event {
	return Event{
		Type:          EventEntryRemoved,
		LeaderboardID: leaderboardID,
		PlayerID:      playerID,
		Data:          map[string]any{"previous_rank": rank},
		Timestamp:     time.Now(),
	}
}

// NewLeaderboardResetEvent reports a cleared board.
func NewLeaderboardResetEvent(leaderboardID string, removed int) Event {
	return Event{
		Type:          EventLeaderboardReset,
		LeaderboardID: leaderboardID,
		Data:          map[string]any{"removed_entries": removed},
		Timestamp:     time.Now(),
	}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      map[string]any{},
		Timestamp: time.Now(),
	}
}

// NewErrorEvent reports a failed client message on its own connection.
func NewErrorEvent(code, message string) Event {
	return Event{
		Type:      EventError,
		Data:      map[string]string{"code": code, "message": message},
		Timestamp: time.Now(),
	}
}

// NewSubscribedEvent acknowledges a SUBSCRIBE.
func NewSubscribedEvent(added, current []string) Event {
	return Event{
		Type:      EventSubscribed,
		Data:      map[string]any{"leaderboard_ids": added, "subscriptions": current},
		Timestamp: time.Now(),
	}
}

// NewUnsubscribedEvent acknowledges an UNSUBSCRIBE.
func NewUnsubscribedEvent(removed, current []string) Event {
	return Event{
		Type:      EventUnsubscribed,
		Data:      map[string]any{"leaderboard_ids": removed, "subscriptions": current},
		Timestamp: time.Now(),
	}
}

// NewWelcomeEvent is the connect acknowledgement.
func NewWelcomeEvent(connectionID string, heartbeat time.Duration, maxSubscriptions int) Event {
	return Event{
		Type: EventWelcome,
		Data: map[string]any{
			"connection_id":         connectionID,
			"heartbeat_interval_ms": heartbeat.Milliseconds(),
			"max_subscriptions":     maxSubscriptions,
		},
		Timestamp: time.Now(),
	}
}

// NewAuthenticatedEvent acknowledges an AUTH.
func NewAuthenticatedEvent(userID string) Event {
	return Event{
		Type:      EventAuthenticated,
		PlayerID:  userID,
		Data:      map[string]string{"user_id": userID},
		Timestamp: time.Now(),
	}
}
