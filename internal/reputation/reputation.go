// Package reputation scores agents from their settled ledger history.
// Scores are derived on demand; nothing here holds state.
package reputation

// CompletionFacts summarizes an agent's ledger history.
type CompletionFacts struct {
	ReceiptsSubmitted uint64 `json:"receipts_submitted"`
	RewardsClaimed    uint64 `json:"rewards_claimed"`
	LamportsEarned    uint64 `json:"lamports_earned"`
	// DisputesWon counts resolutions that awarded the agent at least half.
	DisputesWon  uint64 `json:"disputes_won"`
	DisputesLost uint64 `json:"disputes_lost"`
}

const (
	pointsPerReceipt     = 2
	pointsPerClaim       = 10
	pointsPerDisputeWon  = 5
	pointsPerDisputeLost = -15
	lamportsPerPoint     = 100_000_000
	maxEarningPoints     = 1000
)

// Delta returns the points earned by facts. It never panics on large
// inputs; each component saturates.
func Delta(f CompletionFacts) int64 {
	earned := f.LamportsEarned / lamportsPerPoint
	if earned > maxEarningPoints {
		earned = maxEarningPoints
	}
	total := saturate(f.ReceiptsSubmitted)*pointsPerReceipt +
		saturate(f.RewardsClaimed)*pointsPerClaim +
		saturate(f.DisputesWon)*pointsPerDisputeWon +
		saturate(f.DisputesLost)*pointsPerDisputeLost +
		int64(earned)
	return total
}

func saturate(v uint64) int64 {
	const limit = 1 << 40
	if v > limit {
		return limit
	}
	return int64(v)
}

// Level is a named reputation band.
type Level struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
	// NextThreshold is the points needed for the next level, 0 at the top.
	NextThreshold int64 `json:"next_threshold"`
}

type band struct {
	min  int64
	name string
}

var levels = []band{
	{0, "Newcomer"},
	{50, "Contributor"},
	{200, "Builder"},
	{500, "Specialist"},
	{1000, "Expert"},
	{2500, "Master"},
	{5000, "Legend"},
}

// LevelFor looks points up in the fixed ascending threshold table. Negative
// totals sit in the first band.
func LevelFor(points int64) Level {
	idx := 0
	for i, b := range levels {
		if points >= b.min {
			idx = i
		}
	}
	lvl := Level{Level: idx + 1, Name: levels[idx].name}
	if idx+1 < len(levels) {
		lvl.NextThreshold = levels[idx+1].min
	}
	return lvl
}

// Score bundles the facts with their points and level.
type Score struct {
	Agent  string          `json:"agent"`
	Facts  CompletionFacts `json:"facts"`
	Points int64           `json:"points"`
	Level  Level           `json:"level"`
}

func ScoreFor(agent string, f CompletionFacts) Score {
	p := Delta(f)
	return Score{Agent: agent, Facts: f, Points: p, Level: LevelFor(p)}
}
