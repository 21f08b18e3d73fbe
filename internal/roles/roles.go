// Package roles maps resolved levels and weekly rankings to Discord role
// mutations: exclusive tier roles, additive achievement roles, and the
// rotating weekly champion set.
package roles

import (
	"fmt"
	"log/slog"
	"sort"

	"levelbot/internal/models"
)

// Manager performs role mutations against the chat platform. Role names that
// do not exist in the guild are skipped by the implementation, not surfaced
// as errors here.
type Manager interface {
	AddRole(userID, roleName string) error
	RemoveRole(userID, roleName string) error
	Roles(userID string) (map[string]bool, error)
	MembersWithRole(roleName string) ([]string, error)
}

// Policy applies the tier/achievement/champion tables.
type Policy struct {
	tiers        map[int]string // level -> exclusive tier role
	achievements map[int]string // level -> additive achievement role
	champions    map[int]string // rank -> exclusive champion role
	mgr          Manager
	logger       *slog.Logger
}

// NewPolicy creates a role policy over the given tables and manager.
func NewPolicy(tiers, achievements, champions map[int]string, mgr Manager, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		tiers:        tiers,
		achievements: achievements,
		champions:    champions,
		mgr:          mgr,
		logger:       logger,
	}
}

// LevelUpOutcome reports which roles a single level-up granted, for
// notification purposes. Empty strings mean no role at that level.
type LevelUpOutcome struct {
	Achievement string
	Tier        string
}

// ApplyLevelUp grants the achievement role for the new level if one exists,
// and performs the exclusive tier swap if the new level has a tier role:
// every currently held tier role is removed before the new one is added, so
// a member holds at most one tier role at any time. Role errors are logged
// and skipped.
func (p *Policy) ApplyLevelUp(userID string, ev models.LevelUpEvent) LevelUpOutcome {
	var out LevelUpOutcome

	if name, ok := p.achievements[ev.NewLevel]; ok {
		if err := p.mgr.AddRole(userID, name); err != nil {
			p.logger.Warn("achievement role grant failed", "user", userID, "role", name, "error", err)
		} else {
			out.Achievement = name
		}
	}

	name, ok := p.tiers[ev.NewLevel]
	if !ok {
		return out
	}

	held, err := p.mgr.Roles(userID)
	if err != nil {
		p.logger.Warn("role lookup failed, skipping tier swap", "user", userID, "error", err)
		return out
	}
	for _, tier := range p.tiers {
		if tier == name {
			continue
		}
		if held[tier] {
			if err := p.mgr.RemoveRole(userID, tier); err != nil {
				p.logger.Warn("tier role removal failed", "user", userID, "role", tier, "error", err)
			}
		}
	}
	if err := p.mgr.AddRole(userID, name); err != nil {
		p.logger.Warn("tier role grant failed", "user", userID, "role", name, "error", err)
		return out
	}
	out.Tier = name
	return out
}

// RotateChampions revokes every champion role from its current holders, then
// grants them to the new top-N in rank order. Entries beyond the champion
// table are ignored; ranks without an entry simply stay unassigned.
func (p *Policy) RotateChampions(entries []models.LeaderboardEntry) error {
	for _, name := range p.champions {
		holders, err := p.mgr.MembersWithRole(name)
		if err != nil {
			return fmt.Errorf("failed to list holders of %q: %w", name, err)
		}
		for _, userID := range holders {
			if err := p.mgr.RemoveRole(userID, name); err != nil {
				p.logger.Warn("champion role revoke failed", "user", userID, "role", name, "error", err)
			}
		}
	}

	for _, e := range entries {
		name, ok := p.champions[e.Rank]
		if !ok {
			continue
		}
		if err := p.mgr.AddRole(e.UserID, name); err != nil {
			p.logger.Warn("champion role grant failed", "user", e.UserID, "role", name, "error", err)
			continue
		}
		p.logger.Info("champion role assigned", "user", e.UserID, "role", name, "rank", e.Rank)
	}
	return nil
}

// ChampionCount returns how many champion ranks the table covers.
func (p *Policy) ChampionCount() int {
	return len(p.champions)
}

// TierNames returns the tier role names in ascending level order.
func (p *Policy) TierNames() []string {
	levels := make([]int, 0, len(p.tiers))
	for lvl := range p.tiers {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	names := make([]string, 0, len(levels))
	for _, lvl := range levels {
		names = append(names, p.tiers[lvl])
	}
	return names
}
