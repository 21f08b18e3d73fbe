// Package progression orchestrates XP grants. Every mutation of a user's
// record runs under that user's lock, so concurrent event sources (message
// handlers, presence loops, the rotation job) can never interleave their
// load-modify-save sequences for the same user. Different users proceed in
// parallel.
package progression

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"levelbot/internal/cooldown"
	"levelbot/internal/leveling"
	"levelbot/internal/models"
	"levelbot/internal/roles"
	"levelbot/internal/store"
)

// Notifier delivers progress messages to a channel. Failures are non-fatal.
type Notifier interface {
	SendMessage(channelID, content string) error
}

// Config holds the XP amounts the service hands out.
type Config struct {
	DailyBonusXP int
	MessageXPMin int
	MessageXPMax int
	VoiceXP      int
}

// Service funnels all progression mutations through per-user locks.
type Service struct {
	store    store.Store
	gate     *cooldown.Gate
	policy   *roles.Policy
	notifier Notifier
	cfg      Config
	logger   *slog.Logger

	// intN is rand.Intn, injectable in tests.
	intN func(n int) int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates the progression service.
func NewService(st store.Store, gate *cooldown.Gate, policy *roles.Policy, notifier Notifier, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		gate:     gate,
		policy:   policy,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		intN:     rand.Intn,
		locks:    make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex owning all mutations for one user id.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// sideEffect pairs a grant result with the channel it should be announced in.
type sideEffect struct {
	dailyBonus int
	levelUps   []models.LevelUpEvent
}

// HandleMessage processes one chat message: cooldown gate, daily bonus,
// random per-message XP, cascade, persist, then notifications and role
// side effects. Returns nil when the cooldown suppressed the grant.
func (s *Service) HandleMessage(userID, channelID string, now time.Time) error {
	if !s.gate.Allow(userID, now) {
		return nil
	}

	msgXP := s.cfg.MessageXPMin
	if spread := s.cfg.MessageXPMax - s.cfg.MessageXPMin; spread > 0 {
		msgXP += s.intN(spread + 1)
	}

	fx, err := s.mutate(userID, func(rec models.UserProgression) (models.UserProgression, sideEffect, error) {
		var fx sideEffect
		rec, fx.dailyBonus = leveling.MaybeGrantDaily(rec, now, s.cfg.DailyBonusXP)

		for _, delta := range []int{fx.dailyBonus, msgXP} {
			if delta == 0 {
				continue
			}
			next, events, err := leveling.ApplyXP(rec, delta)
			if err != nil {
				return rec, fx, err
			}
			rec = next
			rec.XPHistory = append(rec.XPHistory, models.XPEntry{Timestamp: now.Unix(), Delta: delta})
			fx.levelUps = append(fx.levelUps, events...)
		}
		return rec, fx, nil
	})
	if err != nil {
		return fmt.Errorf("message xp grant for %s: %w", userID, err)
	}

	if fx.dailyBonus > 0 {
		s.notify(channelID, fmt.Sprintf("🎁 <@%s> daily bonus! +%dXP", userID, fx.dailyBonus))
	}
	s.announceLevelUps(userID, channelID, fx.levelUps)
	return nil
}

// GrantVoiceXP applies one presence-interval grant for a user in a voice
// channel. Called by the session tracker once per eligible interval.
func (s *Service) GrantVoiceXP(userID, channelID string, now time.Time) error {
	fx, err := s.mutate(userID, func(rec models.UserProgression) (models.UserProgression, sideEffect, error) {
		var fx sideEffect
		rec, events, err := leveling.ApplyXP(rec, s.cfg.VoiceXP)
		if err != nil {
			return rec, fx, err
		}
		rec.XPHistory = append(rec.XPHistory, models.XPEntry{Timestamp: now.Unix(), Delta: s.cfg.VoiceXP})
		fx.levelUps = events
		return rec, fx, nil
	})
	if err != nil {
		return fmt.Errorf("voice xp grant for %s: %w", userID, err)
	}

	s.announceLevelUps(userID, channelID, fx.levelUps)
	return nil
}

// CompactHistory drops a user's history entries older than the boundary,
// under the same per-user serialization as every other mutation.
func (s *Service) CompactHistory(userID string, boundary time.Time) error {
	_, err := s.mutate(userID, func(rec models.UserProgression) (models.UserProgression, sideEffect, error) {
		rec.XPHistory = leveling.CompactHistory(rec.XPHistory, boundary)
		return rec, sideEffect{}, nil
	})
	return err
}

// mutate runs one guarded load-modify-save sequence for a user. The
// transition function is pure; side effects happen after the lock is
// released so network I/O never blocks other grants for the same user.
func (s *Service) mutate(userID string, fn func(models.UserProgression) (models.UserProgression, sideEffect, error)) (sideEffect, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	rec, ok := s.store.Get(userID)
	if !ok {
		rec = models.NewUserProgression()
	}

	rec, fx, err := fn(rec)
	if err != nil {
		return fx, err
	}
	if err := s.store.Put(userID, rec); err != nil {
		return fx, fmt.Errorf("persist failed: %w", err)
	}
	return fx, nil
}

func (s *Service) announceLevelUps(userID, channelID string, events []models.LevelUpEvent) {
	for _, ev := range events {
		s.notify(channelID, fmt.Sprintf("🎉 <@%s> reached Lv%d!", userID, ev.NewLevel))

		out := s.policy.ApplyLevelUp(userID, ev)
		if out.Achievement != "" {
			s.notify(channelID, fmt.Sprintf("📸 <@%s> earned %s!", userID, out.Achievement))
		}
		if out.Tier != "" {
			s.notify(channelID, fmt.Sprintf("🏆 <@%s> promoted to %s!", userID, out.Tier))
		}
	}
}

func (s *Service) notify(channelID, content string) {
	if channelID == "" {
		return
	}
	if err := s.notifier.SendMessage(channelID, content); err != nil {
		s.logger.Warn("notification failed", "channel", channelID, "error", err)
	}
}
