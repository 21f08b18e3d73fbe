// Package leveling implements the pure XP state transitions: the cascading
// level-up resolution, the daily bonus policy, and windowed history sums.
// Nothing here performs I/O.
package leveling

import (
	"errors"
	"time"

	"levelbot/internal/models"
)

// ErrNegativeDelta is returned when an XP application carries a negative
// delta. The record is left unchanged.
var ErrNegativeDelta = errors.New("leveling: xp delta must be non-negative")

// RequiredXP returns the XP needed to complete the given level.
func RequiredXP(level int) int {
	return level * 100
}

// ApplyXP adds delta to the record's XP and resolves level-ups. While the
// accumulated XP reaches the current level's requirement, the requirement is
// subtracted and the level incremented, emitting one LevelUpEvent per level
// crossed. A single large delta can cross several levels at once.
func ApplyXP(rec models.UserProgression, delta int) (models.UserProgression, []models.LevelUpEvent, error) {
	if delta < 0 {
		return rec, nil, ErrNegativeDelta
	}

	rec = rec.Normalize()
	rec.XP += delta

	var events []models.LevelUpEvent
	for rec.XP >= RequiredXP(rec.Level) {
		rec.XP -= RequiredXP(rec.Level)
		rec.Level++
		events = append(events, models.LevelUpEvent{NewLevel: rec.Level})
	}

	return rec, events, nil
}

// DateKey formats a time as the UTC calendar date used for daily bonus
// bookkeeping.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MaybeGrantDaily grants the daily bonus if the record has not received one
// on the given day yet (UTC calendar date comparison). It returns the updated
// record and the granted delta, zero when the bonus was already claimed.
// The delta still has to be applied through ApplyXP by the caller.
func MaybeGrantDaily(rec models.UserProgression, now time.Time, bonus int) (models.UserProgression, int) {
	today := DateKey(now)
	if rec.LastDaily == today {
		return rec, 0
	}
	rec.LastDaily = today
	return rec, bonus
}

// WindowedSum returns the sum of history deltas with a timestamp at or after
// the boundary. Entry order does not matter.
func WindowedSum(history []models.XPEntry, boundary time.Time) int {
	cutoff := boundary.Unix()
	sum := 0
	for _, e := range history {
		if e.Timestamp >= cutoff {
			sum += e.Delta
		}
	}
	return sum
}

// CompactHistory drops history entries older than the boundary, keeping the
// slice bounded to the maximum window the rotation still needs.
func CompactHistory(history []models.XPEntry, boundary time.Time) []models.XPEntry {
	cutoff := boundary.Unix()
	kept := history[:0:0]
	for _, e := range history {
		if e.Timestamp >= cutoff {
			kept = append(kept, e)
		}
	}
	return kept
}
