package roles

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelbot/internal/models"
)

// fakeManager records role state in memory.
type fakeManager struct {
	mu    sync.Mutex
	roles map[string]map[string]bool
}

func newFakeManager() *fakeManager {
	return &fakeManager{roles: make(map[string]map[string]bool)}
}

func (m *fakeManager) AddRole(userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[userID] == nil {
		m.roles[userID] = make(map[string]bool)
	}
	m.roles[userID][roleName] = true
	return nil
}

func (m *fakeManager) RemoveRole(userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles[userID], roleName)
	return nil
}

func (m *fakeManager) Roles(userID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.roles[userID]))
	for name := range m.roles[userID] {
		out[name] = true
	}
	return out, nil
}

func (m *fakeManager) MembersWithRole(roleName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var holders []string
	for userID, held := range m.roles {
		if held[roleName] {
			holders = append(holders, userID)
		}
	}
	return holders, nil
}

var testTiers = map[int]string{1: "MEMBER Lite", 10: "MEMBER", 30: "CORE"}
var testAchievements = map[int]string{3: "PHOTO+"}
var testChampions = map[int]string{1: "Weekly Champion", 2: "Weekly Runner-up"}

func TestApplyLevelUp_TierExclusivity(t *testing.T) {
	mgr := newFakeManager()
	policy := NewPolicy(testTiers, testAchievements, testChampions, mgr, nil)

	// Walk a user through every tier threshold.
	for _, lvl := range []int{1, 3, 10, 30} {
		policy.ApplyLevelUp("u1", models.LevelUpEvent{NewLevel: lvl})
	}

	held, err := mgr.Roles("u1")
	require.NoError(t, err)

	// Exactly one tier role, the highest one reached.
	tierCount := 0
	for _, name := range testTiers {
		if held[name] {
			tierCount++
		}
	}
	assert.Equal(t, 1, tierCount)
	assert.True(t, held["CORE"])

	// Achievement role persists through later tier swaps.
	assert.True(t, held["PHOTO+"])
}

func TestApplyLevelUp_NoTableMatch(t *testing.T) {
	mgr := newFakeManager()
	policy := NewPolicy(testTiers, testAchievements, testChampions, mgr, nil)

	out := policy.ApplyLevelUp("u1", models.LevelUpEvent{NewLevel: 7})
	assert.Empty(t, out.Tier)
	assert.Empty(t, out.Achievement)

	held, _ := mgr.Roles("u1")
	assert.Empty(t, held)
}

func TestApplyLevelUp_Outcome(t *testing.T) {
	mgr := newFakeManager()
	policy := NewPolicy(testTiers, testAchievements, testChampions, mgr, nil)

	out := policy.ApplyLevelUp("u1", models.LevelUpEvent{NewLevel: 10})
	assert.Equal(t, "MEMBER", out.Tier)
	assert.Empty(t, out.Achievement)

	out = policy.ApplyLevelUp("u1", models.LevelUpEvent{NewLevel: 3})
	assert.Equal(t, "PHOTO+", out.Achievement)
}

func TestApplyLevelUp_AchievementIdempotent(t *testing.T) {
	mgr := newFakeManager()
	policy := NewPolicy(testTiers, testAchievements, testChampions, mgr, nil)

	policy.ApplyLevelUp("u1", models.LevelUpEvent{NewLevel: 3})
	policy.ApplyLevelUp("u1", models.LevelUpEvent{NewLevel: 3})

	held, _ := mgr.Roles("u1")
	assert.True(t, held["PHOTO+"])
}

func TestRotateChampions_SwapsHolders(t *testing.T) {
	mgr := newFakeManager()
	policy := NewPolicy(testTiers, testAchievements, testChampions, mgr, nil)

	// Last week's champions.
	require.NoError(t, mgr.AddRole("old1", "Weekly Champion"))
	require.NoError(t, mgr.AddRole("old2", "Weekly Runner-up"))

	err := policy.RotateChampions([]models.LeaderboardEntry{
		{Rank: 1, UserID: "new1", Score: 100},
		{Rank: 2, UserID: "new2", Score: 50},
	})
	require.NoError(t, err)

	held, _ := mgr.Roles("old1")
	assert.False(t, held["Weekly Champion"])
	held, _ = mgr.Roles("new1")
	assert.True(t, held["Weekly Champion"])
	held, _ = mgr.Roles("new2")
	assert.True(t, held["Weekly Runner-up"])
}

func TestRotateChampions_FewerEntriesThanRanks(t *testing.T) {
	mgr := newFakeManager()
	policy := NewPolicy(testTiers, testAchievements, testChampions, mgr, nil)
	require.NoError(t, mgr.AddRole("old2", "Weekly Runner-up"))

	err := policy.RotateChampions([]models.LeaderboardEntry{
		{Rank: 1, UserID: "solo", Score: 10},
	})
	require.NoError(t, err)

	held, _ := mgr.Roles("solo")
	assert.True(t, held["Weekly Champion"])
	// Rank 2 stays unassigned after the revoke.
	holders, _ := mgr.MembersWithRole("Weekly Runner-up")
	assert.Empty(t, holders)
}

func TestChampionCount(t *testing.T) {
	policy := NewPolicy(testTiers, testAchievements, testChampions, newFakeManager(), nil)
	assert.Equal(t, 2, policy.ChampionCount())
}

func TestTierNames_Ordered(t *testing.T) {
	policy := NewPolicy(testTiers, testAchievements, testChampions, newFakeManager(), nil)
	assert.Equal(t, []string{"MEMBER Lite", "MEMBER", "CORE"}, policy.TierNames())
}
