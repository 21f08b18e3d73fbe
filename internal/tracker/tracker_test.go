package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGranter struct {
	mu     sync.Mutex
	grants []string
}

func (g *fakeGranter) GrantVoiceXP(userID, channelID string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants = append(g.grants, userID)
	return nil
}

func (g *fakeGranter) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.grants)
}

type fakePresence struct {
	mu       sync.Mutex
	channels map[string]string // user -> channel
	counts   map[string]int    // channel -> non-bot member count
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		channels: make(map[string]string),
		counts:   make(map[string]int),
	}
}

func (p *fakePresence) UserChannel(userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[userID]
	return ch, ok
}

func (p *fakePresence) NonBotMemberCount(channelID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[channelID], nil
}

func (p *fakePresence) set(userID, channelID string, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channelID == "" {
		delete(p.channels, userID)
	} else {
		p.channels[userID] = channelID
		p.counts[channelID] = count
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestLeaveBeforeFirstIntervalGrantsNothing(t *testing.T) {
	granter := &fakeGranter{}
	presence := newFakePresence()
	presence.set("u1", "vc", 2)

	tr := New(50*time.Millisecond, granter, presence, nil)
	tr.HandleVoiceState("u1", "", "vc")
	time.Sleep(10 * time.Millisecond)
	tr.HandleVoiceState("u1", "vc", "")
	tr.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, granter.count())
}

func TestEligibleSessionGrantsEachInterval(t *testing.T) {
	granter := &fakeGranter{}
	presence := newFakePresence()
	presence.set("u1", "vc", 2)

	tr := New(10*time.Millisecond, granter, presence, nil)
	tr.HandleVoiceState("u1", "", "vc")

	require.True(t, waitFor(t, time.Second, func() bool { return granter.count() >= 3 }))

	tr.HandleVoiceState("u1", "vc", "")
	tr.Stop()
	after := granter.count()

	// Cancellation is observed within one interval; no further grants.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, granter.count())
	assert.False(t, tr.Active("u1"))
}

func TestSoloChannelSkipsCycleWithoutExiting(t *testing.T) {
	granter := &fakeGranter{}
	presence := newFakePresence()
	presence.set("u1", "vc", 1)

	tr := New(10*time.Millisecond, granter, presence, nil)
	defer tr.Stop()
	tr.HandleVoiceState("u1", "", "vc")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, granter.count())
	assert.True(t, tr.Active("u1"))

	// Second member joins: grants resume on the same loop.
	presence.set("u1", "vc", 2)
	assert.True(t, waitFor(t, time.Second, func() bool { return granter.count() >= 1 }))
}

func TestRejoinReplacesSession(t *testing.T) {
	granter := &fakeGranter{}
	presence := newFakePresence()
	presence.set("u1", "vc", 2)

	tr := New(time.Hour, granter, presence, nil)
	defer tr.Stop()

	tr.HandleVoiceState("u1", "", "vc")
	tr.mu.Lock()
	first := tr.sessions["u1"].id
	tr.mu.Unlock()

	// Rejoin before the old loop has observed anything.
	tr.HandleVoiceState("u1", "", "vc")

	tr.mu.Lock()
	require.Len(t, tr.sessions, 1)
	second := tr.sessions["u1"].id
	tr.mu.Unlock()
	assert.NotEqual(t, first, second)
}

func TestLoopExitsWhenUserGone(t *testing.T) {
	granter := &fakeGranter{}
	presence := newFakePresence()
	// User never appears connected: loop exits at its first wake.

	tr := New(10*time.Millisecond, granter, presence, nil)
	defer tr.Stop()
	tr.HandleVoiceState("u1", "", "vc")

	assert.True(t, waitFor(t, time.Second, func() bool { return !tr.Active("u1") }))
	assert.Equal(t, 0, granter.count())
}

func TestChannelMoveKeepsSession(t *testing.T) {
	granter := &fakeGranter{}
	presence := newFakePresence()
	presence.set("u1", "vc2", 2)

	tr := New(10*time.Millisecond, granter, presence, nil)
	defer tr.Stop()

	tr.HandleVoiceState("u1", "", "vc1")
	tr.HandleVoiceState("u1", "vc1", "vc2")

	assert.True(t, tr.Active("u1"))
	assert.True(t, waitFor(t, time.Second, func() bool { return granter.count() >= 1 }))
}

func TestStopCancelsAllSessions(t *testing.T) {
	granter := &fakeGranter{}
	presence := newFakePresence()
	presence.set("a", "vc", 2)
	presence.set("b", "vc", 2)

	tr := New(time.Hour, granter, presence, nil)
	tr.HandleVoiceState("a", "", "vc")
	tr.HandleVoiceState("b", "", "vc")

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
