// Package ranking computes read-only top-N views over the progression store.
package ranking

import (
	"sort"
	"time"

	"levelbot/internal/leveling"
	"levelbot/internal/models"
)

// TopN ranks all users by (level, xp) descending. Ties break toward the
// lower user id for determinism.
func TopN(users map[string]models.UserProgression, n int) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(users))
	for id, rec := range users {
		entries = append(entries, models.LeaderboardEntry{
			UserID: id,
			Level:  rec.Level,
			XP:     rec.XP,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Level != entries[j].Level {
			return entries[i].Level > entries[j].Level
		}
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].UserID < entries[j].UserID
	})

	return truncate(entries, n)
}

// TopNWindowed ranks users by the sum of XP history entries at or after the
// boundary, descending. Users with a zero windowed sum are excluded. Ties
// break toward the lower user id.
func TopNWindowed(users map[string]models.UserProgression, n int, boundary time.Time) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(users))
	for id, rec := range users {
		sum := leveling.WindowedSum(rec.XPHistory, boundary)
		if sum <= 0 {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			UserID: id,
			Level:  rec.Level,
			XP:     rec.XP,
			Score:  sum,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})

	return truncate(entries, n)
}

func truncate(entries []models.LeaderboardEntry, n int) []models.LeaderboardEntry {
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
