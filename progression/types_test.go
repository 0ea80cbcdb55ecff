package progression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/quest-engine/progression"
)

// =============================================================================
// SNAPSHOT SHAPE TESTS
// =============================================================================

func TestNewSnapshot_CarriesEveryTier(t *testing.T) {
	snap := progression.NewSnapshot()

	for _, d := range progression.Difficulties {
		_, ok := snap.Completed[d]
		assert.True(t, ok, "completed missing tier %s", d)
		_, ok = snap.Failed[d]
		assert.True(t, ok, "failed missing tier %s", d)
	}
	assert.Equal(t, 1, snap.Level)
}

func TestNormalize_MaterializesSparseCounters(t *testing.T) {
	// GIVEN: A snapshot deserialized from a record that only stored the
	//        touched tiers
	// WHEN: It is normalized
	// THEN: It compares equal to a canonically built snapshot with the
	//       same counts

	sparse := progression.Snapshot{
		Completed:     map[progression.Difficulty]int{progression.DifficultyMedium: 1},
		Failed:        map[progression.Difficulty]int{},
		XP:            20,
		CoinBalance:   20,
		LifetimeCoins: 20,
		LifetimeXP:    20,
	}
	sparse.Normalize()

	want := progression.NewSnapshot()
	want.Completed[progression.DifficultyMedium] = 1
	want.XP = 20
	want.CoinBalance = 20
	want.LifetimeCoins = 20
	want.LifetimeXP = 20
	want.Level = progression.LevelForXP(20)

	assert.Equal(t, *want, sparse)
}

func TestNormalize_NilMapsAndDriftedLevel(t *testing.T) {
	snap := progression.Snapshot{XP: 250, Level: 99}
	snap.Normalize()

	assert.Equal(t, progression.LevelForXP(250), snap.Level)
	assert.Equal(t, 250, snap.LifetimeXP)
	for _, d := range progression.Difficulties {
		assert.Equal(t, 0, snap.Completed[d])
		assert.Equal(t, 0, snap.Failed[d])
	}
}
