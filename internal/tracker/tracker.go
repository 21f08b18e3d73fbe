// Package tracker manages one cancellable background loop per active voice
// session, periodically granting XP while the session stays eligible.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"levelbot/internal/models"
)

// Granter performs the guarded XP mutation for one presence interval.
type Granter interface {
	GrantVoiceXP(userID, channelID string, now time.Time) error
}

// Presence answers questions about current voice state.
type Presence interface {
	// UserChannel returns the voice channel the user currently occupies.
	UserChannel(userID string) (string, bool)

	// NonBotMemberCount counts non-bot members in a voice channel.
	NonBotMemberCount(channelID string) (int, error)
}

// session is one active presence loop. The uuid distinguishes a replaced
// session from its successor when both briefly coexist.
type session struct {
	models.VoiceSession
	id     uuid.UUID
	cancel context.CancelFunc
}

// Tracker owns the set of active sessions, keyed by user id. A rejoin
// replaces the previous session rather than adding a second loop.
type Tracker struct {
	interval time.Duration
	granter  Granter
	presence Presence
	logger   *slog.Logger
	clock    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// New creates a tracker granting XP every interval.
func New(interval time.Duration, granter Granter, presence Presence, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		interval: interval,
		granter:  granter,
		presence: presence,
		logger:   logger,
		clock:    time.Now,
		sessions: make(map[string]*session),
	}
}

// HandleVoiceState dispatches a voice-state transition. Empty channel ids
// mean "not in a voice channel" on that side of the transition.
func (t *Tracker) HandleVoiceState(userID, before, after string) {
	switch {
	case after == "" && before != "":
		t.Leave(userID)
	case after != "" && before == "":
		t.Join(userID, after)
	case after != "" && after != before:
		// Channel move: keep the loop, update the target channel.
		t.mu.Lock()
		if sess, ok := t.sessions[userID]; ok {
			sess.ChannelID = after
		}
		t.mu.Unlock()
	}
}

// Join starts a presence loop for the user. An existing session for the same
// user is cancelled first, so at most one loop per user is ever active.
func (t *Tracker) Join(userID, channelID string) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		VoiceSession: models.VoiceSession{UserID: userID, ChannelID: channelID, Start: t.clock()},
		id:           uuid.New(),
		cancel:       cancel,
	}

	t.mu.Lock()
	if prev, ok := t.sessions[userID]; ok {
		prev.cancel()
	}
	t.sessions[userID] = sess
	t.mu.Unlock()

	t.logger.Info("voice session started", "user", userID, "channel", channelID, "session", sess.id)

	t.wg.Add(1)
	go t.loop(ctx, sess)
}

// Leave cancels the user's session, if any. The loop observes the
// cancellation within one interval and exits without further mutation.
func (t *Tracker) Leave(userID string) {
	t.mu.Lock()
	sess, ok := t.sessions[userID]
	if ok {
		delete(t.sessions, userID)
	}
	t.mu.Unlock()

	if ok {
		sess.cancel()
		t.logger.Info("voice session ended", "user", userID, "session", sess.id,
			"duration", t.clock().Sub(sess.Start).String())
	}
}

// Active reports whether the user has a running session.
func (t *Tracker) Active(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[userID]
	return ok
}

// Stop cancels every session and waits for all loops to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	for userID, sess := range t.sessions {
		sess.cancel()
		delete(t.sessions, userID)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// loop sleeps one interval at a time. Cancellation is only checked at
// iteration boundaries, never mid-grant, so a cancelled session can never
// leave a half-applied mutation behind.
func (t *Tracker) loop(ctx context.Context, sess *session) {
	defer t.wg.Done()

	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		channelID, connected := t.presence.UserChannel(sess.UserID)
		if !connected {
			t.expire(sess)
			return
		}

		// A solo channel is ineligible, but the loop stays alive so grants
		// resume once a second member joins.
		count, err := t.presence.NonBotMemberCount(channelID)
		if err != nil {
			t.logger.Warn("eligibility check failed", "user", sess.UserID, "channel", channelID, "error", err)
		} else if count >= 2 {
			if err := t.granter.GrantVoiceXP(sess.UserID, channelID, t.clock()); err != nil {
				t.logger.Error("voice xp grant failed", "user", sess.UserID, "error", err)
			}
		}

		timer.Reset(t.interval)
	}
}

// expire removes a session that ended on its own (user gone without a leave
// event). The uuid check keeps it from evicting a replacement session.
func (t *Tracker) expire(sess *session) {
	t.mu.Lock()
	if cur, ok := t.sessions[sess.UserID]; ok && cur.id == sess.id {
		delete(t.sessions, sess.UserID)
	}
	t.mu.Unlock()
	t.logger.Info("voice session expired", "user", sess.UserID, "session", sess.id)
}
