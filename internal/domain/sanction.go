package domain

import "time"

// PlayerSanction is the ban and suspension state of one player.
type PlayerSanction struct {
	PlayerID string `json:"player_id"`

	Banned    bool       `json:"banned"`
	BanReason string     `json:"ban_reason,omitempty"`
	BannedBy  string     `json:"banned_by,omitempty"`
	BannedAt  *time.Time `json:"banned_at,omitempty"`

	SuspendedUntil   *time.Time `json:"suspended_until,omitempty"`
	SuspensionReason string     `json:"suspension_reason,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SuspendedAt reports whether a suspension window is active at t.
func (s *PlayerSanction) SuspendedAt(t time.Time) bool {
	return s != nil && s.SuspendedUntil != nil && t.Before(*s.SuspendedUntil)
}

// IsBanned reports whether the player is banned. Safe on nil.
func (s *PlayerSanction) IsBanned() bool {
	return s != nil && s.Banned
}

// Cleared reports whether the record no longer restricts the player at t.
func (s *PlayerSanction) Cleared(t time.Time) bool {
	return !s.IsBanned() && !s.SuspendedAt(t)
}
