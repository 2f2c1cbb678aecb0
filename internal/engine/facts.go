package engine

import (
	"context"
	"math"

	"bountygraph/internal/repo"
	"bountygraph/internal/reputation"
)

// AgentFacts derives an agent's completion history from receipts, claims
// and resolved disputes.
func (e Engine) AgentFacts(ctx context.Context, agent string) (reputation.CompletionFacts, error) {
	var f reputation.CompletionFacts
	if err := requireSigner(agent, "agent"); err != nil {
		return f, err
	}
	receipts, err := e.Repo.ListReceiptsByAgent(ctx, e.DB, agent)
	if err != nil {
		return f, err
	}
	f.ReceiptsSubmitted = uint64(len(receipts))

	claimed, err := e.Repo.ListTasks(ctx, e.DB, repo.TaskFilters{CompletedBy: agent})
	if err != nil {
		return f, err
	}
	for _, t := range claimed {
		f.RewardsClaimed++
		if t.ClaimedLamports != nil {
			f.LamportsEarned = addSaturating(f.LamportsEarned, *t.ClaimedLamports)
		}
	}

	disputes, err := e.Repo.ListResolvedDisputesByWorker(ctx, e.DB, agent)
	if err != nil {
		return f, err
	}
	for _, d := range disputes {
		if d.WorkerPct != nil && *d.WorkerPct >= 50 {
			f.DisputesWon++
		} else {
			f.DisputesLost++
		}
		if d.WorkerAmount != nil {
			f.LamportsEarned = addSaturating(f.LamportsEarned, *d.WorkerAmount)
		}
	}
	return f, nil
}

// Reputation scores an agent from its ledger history.
func (e Engine) Reputation(ctx context.Context, agent string) (reputation.Score, error) {
	f, err := e.AgentFacts(ctx, agent)
	if err != nil {
		return reputation.Score{}, err
	}
	return reputation.ScoreFor(agent, f), nil
}

func addSaturating(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}
	return a + b
}
