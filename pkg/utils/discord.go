package utils

import (
	"fmt"
	"strings"
)

// FormatUserMention formats a user ID as a Discord mention
func FormatUserMention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// FormatChannelMention formats a channel ID as a Discord channel mention
func FormatChannelMention(channelID string) string {
	return fmt.Sprintf("<#%s>", channelID)
}

// FormatLeaderboardEntry formats a leaderboard entry with rank, user, and score
func FormatLeaderboardEntry(rank int, userMention, score string) string {
	medal := ""
	switch rank {
	case 1:
		medal = "🥇"
	case 2:
		medal = "🥈"
	case 3:
		medal = "🥉"
	default:
		medal = fmt.Sprintf("%d.", rank)
	}

	return fmt.Sprintf("%s %s - %s", medal, userMention, score)
}

// ProgressBar renders a filled/empty bar for xp progress toward the next
// level, e.g. "████████░░░░░░░░░░░░".
func ProgressBar(current, required, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if required > 0 {
		filled = width * current / required
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Percent returns current/required as a whole percentage, capped at 100.
func Percent(current, required int) int {
	if required <= 0 {
		return 100
	}
	p := 100 * current / required
	if p > 100 {
		p = 100
	}
	return p
}

// TruncateString truncates a string to max length and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
