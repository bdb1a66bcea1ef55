package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnhealthyRunChangesNothing(t *testing.T) {
	before := map[string]int{"NP-001": 1}

	result := Apply(before, []string{"NP-002"}, []string{"NP-001", "NP-003"}, false, 2)

	assert.Equal(t, before, result.Misses)
	assert.Empty(t, result.Removals)
}

func TestFirstMissIncrementsOnly(t *testing.T) {
	result := Apply(map[string]int{}, nil, []string{"NP-001"}, true, 2)

	assert.Equal(t, map[string]int{"NP-001": 1}, result.Misses)
	assert.Empty(t, result.Removals)
}

func TestSecondConsecutiveMissRemoves(t *testing.T) {
	// threshold=2: one miss keeps the vessel active, a second consecutive
	// healthy miss clears it for removal and drops the counter.
	first := Apply(map[string]int{}, nil, []string{"NP-001"}, true, 2)
	require.Empty(t, first.Removals)

	second := Apply(first.Misses, nil, []string{"NP-001"}, true, 2)
	assert.Equal(t, []string{"NP-001"}, second.Removals)
	assert.NotContains(t, second.Misses, "NP-001")
}

func TestObservationResetsCounter(t *testing.T) {
	first := Apply(map[string]int{}, nil, []string{"NP-001"}, true, 2)
	require.Equal(t, 1, first.Misses["NP-001"])

	// Vessel reappears: counter resets to zero entirely
	reset := Apply(first.Misses, []string{"NP-001"}, nil, true, 2)
	assert.NotContains(t, reset.Misses, "NP-001")

	// A later miss starts over at one
	again := Apply(reset.Misses, nil, []string{"NP-001"}, true, 2)
	assert.Equal(t, 1, again.Misses["NP-001"])
	assert.Empty(t, again.Removals)
}

func TestObservedCandidateCountsAsObserved(t *testing.T) {
	result := Apply(map[string]int{"NP-001": 1}, []string{"NP-001"}, []string{"NP-001"}, true, 2)

	assert.NotContains(t, result.Misses, "NP-001")
	assert.Empty(t, result.Removals)
}

func TestThresholdOneRemovesImmediately(t *testing.T) {
	result := Apply(map[string]int{}, nil, []string{"NP-001", "NP-002"}, true, 1)

	assert.Equal(t, []string{"NP-001", "NP-002"}, result.Removals)
	assert.Empty(t, result.Misses)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	before := map[string]int{"NP-001": 1}

	Apply(before, []string{"NP-001"}, []string{"NP-002"}, true, 2)

	assert.Equal(t, map[string]int{"NP-001": 1}, before)
}

func TestResetObserved(t *testing.T) {
	before := map[string]int{"NP-001": 1, "NP-002": 1}

	next := ResetObserved(before, []string{"NP-001"})

	assert.Equal(t, map[string]int{"NP-002": 1}, next)
	assert.Equal(t, map[string]int{"NP-001": 1, "NP-002": 1}, before)
}
