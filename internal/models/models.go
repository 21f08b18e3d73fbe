package models

import "time"

// XPEntry is one append-only XP history record: when the XP was granted and
// how much. Entries are appended in grant order per user, so timestamps are
// non-decreasing at append time, but callers must not assume a globally
// sorted slice across concurrent writers.
type XPEntry struct {
	Timestamp int64 `json:"ts"`
	Delta     int   `json:"delta"`
}

// UserProgression is the persisted progression record for a single user.
// XP counts toward the current level only; after a cascade it is strictly
// below level*100.
type UserProgression struct {
	XP        int       `json:"xp"`
	Level     int       `json:"level"`
	LastDaily string    `json:"last_daily,omitempty"` // YYYY-MM-DD, UTC
	XPHistory []XPEntry `json:"xp_history,omitempty"`
}

// NewUserProgression returns a fresh record with default values.
func NewUserProgression() UserProgression {
	return UserProgression{XP: 0, Level: 1}
}

// Normalize applies default values to a record loaded from storage.
// Absent fields are a legitimate historical state, not corruption.
func (p UserProgression) Normalize() UserProgression {
	if p.Level < 1 {
		p.Level = 1
	}
	if p.XP < 0 {
		p.XP = 0
	}
	return p
}

// Clone returns a deep copy so callers can mutate without aliasing the
// store's map values.
func (p UserProgression) Clone() UserProgression {
	out := p
	if p.XPHistory != nil {
		out.XPHistory = make([]XPEntry, len(p.XPHistory))
		copy(out.XPHistory, p.XPHistory)
	}
	return out
}

// LevelUpEvent is emitted by the leveling engine for every level threshold
// crossed during one XP application.
type LevelUpEvent struct {
	NewLevel int
}

// VoiceSession represents a user's active voice channel session.
// It is ephemeral and lost on restart.
type VoiceSession struct {
	UserID    string
	ChannelID string
	Start     time.Time
}

// LeaderboardEntry is one row of a ranking query result.
type LeaderboardEntry struct {
	Rank   int
	UserID string
	Level  int
	XP     int
	// Score is the windowed XP sum for windowed rankings; zero otherwise.
	Score int
}
