package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate_BlocksWithinInterval(t *testing.T) {
	gate := NewGate(10 * time.Second)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.True(t, gate.Allow("u1", now))
	assert.False(t, gate.Allow("u1", now.Add(5*time.Second)))
	assert.False(t, gate.Allow("u1", now.Add(9*time.Second)))
	assert.True(t, gate.Allow("u1", now.Add(10*time.Second)))
}

func TestGate_UsersIndependent(t *testing.T) {
	gate := NewGate(10 * time.Second)
	now := time.Now()

	assert.True(t, gate.Allow("u1", now))
	assert.True(t, gate.Allow("u2", now))
	assert.False(t, gate.Allow("u1", now.Add(time.Second)))
	assert.False(t, gate.Allow("u2", now.Add(time.Second)))
}

func TestGate_DeniedAttemptDoesNotResetWindow(t *testing.T) {
	gate := NewGate(10 * time.Second)
	now := time.Now()

	assert.True(t, gate.Allow("u1", now))
	// A blocked attempt must not push the window forward.
	assert.False(t, gate.Allow("u1", now.Add(9*time.Second)))
	assert.True(t, gate.Allow("u1", now.Add(10*time.Second)))
}
