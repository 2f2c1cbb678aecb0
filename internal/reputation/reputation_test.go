package reputation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelta(t *testing.T) {
	cases := []struct {
		name  string
		facts CompletionFacts
		want  int64
	}{
		{"empty", CompletionFacts{}, 0},
		{"receipt only", CompletionFacts{ReceiptsSubmitted: 1}, 2},
		{"claimed", CompletionFacts{ReceiptsSubmitted: 1, RewardsClaimed: 1, LamportsEarned: 1_000_000_000}, 2 + 10 + 10},
		{"lost dispute", CompletionFacts{ReceiptsSubmitted: 1, DisputesLost: 1}, 2 - 15},
		{"won dispute", CompletionFacts{ReceiptsSubmitted: 2, DisputesWon: 1}, 4 + 5},
		{"earnings capped", CompletionFacts{LamportsEarned: math.MaxUint64}, maxEarningPoints},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Delta(tc.facts))
		})
	}
}

func TestDeltaIsPure(t *testing.T) {
	f := CompletionFacts{ReceiptsSubmitted: 3, RewardsClaimed: 2}
	assert.Equal(t, Delta(f), Delta(f))
}

func TestDeltaSaturates(t *testing.T) {
	f := CompletionFacts{ReceiptsSubmitted: math.MaxUint64, RewardsClaimed: math.MaxUint64, DisputesWon: math.MaxUint64}
	assert.Greater(t, Delta(f), int64(0))
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		points int64
		level  int
		name   string
		next   int64
	}{
		{-30, 1, "Newcomer", 50},
		{0, 1, "Newcomer", 50},
		{49, 1, "Newcomer", 50},
		{50, 2, "Contributor", 200},
		{499, 3, "Builder", 500},
		{1000, 5, "Expert", 2500},
		{5000, 7, "Legend", 0},
		{math.MaxInt64, 7, "Legend", 0},
	}
	for _, tc := range cases {
		got := LevelFor(tc.points)
		assert.Equal(t, tc.level, got.Level, "points %d", tc.points)
		assert.Equal(t, tc.name, got.Name, "points %d", tc.points)
		assert.Equal(t, tc.next, got.NextThreshold, "points %d", tc.points)
	}
}

func TestLevelThresholdsAscend(t *testing.T) {
	for i := 1; i < len(levels); i++ {
		assert.Greater(t, levels[i].min, levels[i-1].min)
	}
}
