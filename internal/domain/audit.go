package domain

import "time"

// AuditRecord is the structured entry handed to the audit sink for every
// state-changing action. Previous and Next hold whatever state is relevant to
// the action (a submission status, an entry, a sanction).
type AuditRecord struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	Actor        string    `json:"actor"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Previous     any       `json:"previous,omitempty"`
	Next         any       `json:"next,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Resource types used in audit records.
const (
	ResourceSubmission  = "submission"
	ResourceLeaderboard = "leaderboard"
	ResourcePlayer      = "player"
	ResourceEntry       = "entry"
)

// ActorSystem is the actor for actions the service takes on its own.
const ActorSystem = "system"
