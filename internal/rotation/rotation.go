// Package rotation evaluates the weekly champion boundary: it computes the
// recurring rotation instant, waits for it, ranks the week's windowed XP,
// swaps champion roles, and compacts old history. A persisted marker makes
// each boundary process exactly once, including across restarts.
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"levelbot/internal/models"
	"levelbot/internal/ranking"
	"levelbot/internal/roles"
	"levelbot/internal/store"
)

// Notifier delivers the weekly ranking announcement.
type Notifier interface {
	SendMessage(channelID, content string) error
}

// Compactor trims a user's XP history under per-user serialization.
type Compactor interface {
	CompactHistory(userID string, boundary time.Time) error
}

// Boundary describes the recurring rotation instant.
type Boundary struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// Last returns the most recent occurrence of the boundary strictly before
// now, else one period earlier. This is the canonical rule; an occurrence
// exactly at now counts as the previous period's boundary.
func (b Boundary) Last(now time.Time) time.Time {
	now = now.In(b.Location)
	at := time.Date(now.Year(), now.Month(), now.Day(), b.Hour, b.Minute, 0, 0, b.Location)
	days := (int(now.Weekday()) - int(b.Weekday) + 7) % 7
	at = at.AddDate(0, 0, -days)
	if !at.Before(now) {
		at = at.AddDate(0, 0, -7)
	}
	return at
}

// Next returns the first occurrence of the boundary after now.
func (b Boundary) Next(now time.Time) time.Time {
	return b.Last(now).AddDate(0, 0, 7)
}

// Rotator runs the weekly champion rotation.
type Rotator struct {
	store      store.Store
	policy     *roles.Policy
	notifier   Notifier
	compactor  Compactor
	boundary   Boundary
	channelID  string
	markerPath string
	logger     *slog.Logger
	clock      func() time.Time

	lastProcessed time.Time
}

// NewRotator creates a rotator and loads the last-processed marker.
func NewRotator(st store.Store, policy *roles.Policy, notifier Notifier, compactor Compactor,
	boundary Boundary, channelID, markerPath string, logger *slog.Logger) *Rotator {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rotator{
		store:      st,
		policy:     policy,
		notifier:   notifier,
		compactor:  compactor,
		boundary:   boundary,
		channelID:  channelID,
		markerPath: markerPath,
		logger:     logger,
		clock:      time.Now,
	}
	r.lastProcessed = r.loadMarker()
	return r
}

// Run waits for each upcoming boundary and rotates once per period. A
// boundary missed while the process was down is caught up immediately.
func (r *Rotator) Run(ctx context.Context) {
	for {
		now := r.clock()
		if last := r.boundary.Last(now); last.After(r.lastProcessed) {
			r.rotate(last)
			continue
		}

		next := r.boundary.Next(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// rotate processes one boundary crossing: rank the period that just ended,
// reassign champion roles, announce, and compact history older than the new
// boundary. Idempotent via the marker regardless of how it was reached.
func (r *Rotator) rotate(boundary time.Time) {
	if !boundary.After(r.lastProcessed) {
		return
	}

	windowStart := boundary.AddDate(0, 0, -7)
	users := r.store.All()
	entries := ranking.TopNWindowed(users, r.policy.ChampionCount(), windowStart)

	r.logger.Info("weekly rotation triggered",
		"boundary", boundary.Format(time.RFC3339),
		"window_start", windowStart.Format(time.RFC3339),
		"ranked_users", len(entries))

	if len(entries) > 0 {
		if err := r.policy.RotateChampions(entries); err != nil {
			r.logger.Error("champion rotation failed", "error", err)
		}
		r.announce(entries)
	}

	for userID := range users {
		if err := r.compactor.CompactHistory(userID, boundary); err != nil {
			r.logger.Warn("history compaction failed", "user", userID, "error", err)
		}
	}

	r.lastProcessed = boundary
	if err := r.saveMarker(boundary); err != nil {
		r.logger.Error("failed to persist rotation marker", "error", err)
	}
}

func (r *Rotator) announce(entries []models.LeaderboardEntry) {
	if r.channelID == "" {
		return
	}
	var sb strings.Builder
	sb.WriteString("🏆 Weekly ranking!\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("**#%d** <@%s> - %dXP this week\n", e.Rank, e.UserID, e.Score))
	}
	if err := r.notifier.SendMessage(r.channelID, sb.String()); err != nil {
		r.logger.Warn("weekly announcement failed", "channel", r.channelID, "error", err)
	}
}

// loadMarker reads the persisted last-processed boundary. Missing or
// malformed markers mean "never processed".
func (r *Rotator) loadMarker() time.Time {
	data, err := os.ReadFile(r.markerPath)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		r.logger.Warn("rotation marker malformed, ignoring", "path", r.markerPath, "error", err)
		return time.Time{}
	}
	return t
}

// saveMarker persists the marker with the same temp-and-rename scheme as the
// progression file.
func (r *Rotator) saveMarker(t time.Time) error {
	dir := filepath.Dir(r.markerPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.markerPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp marker file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(t.Format(time.RFC3339) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp marker file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp marker file: %w", err)
	}
	if err := os.Rename(tmpName, r.markerPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace marker file: %w", err)
	}
	return nil
}
