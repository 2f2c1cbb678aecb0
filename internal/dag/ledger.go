package dag

import (
	"strconv"

	"bountygraph/internal/domain"
)

// LedgerAdjacency keys created tasks by their decimal task id.
func LedgerAdjacency(tasks []domain.Task) Adjacency {
	adj := make(Adjacency, len(tasks))
	for _, t := range tasks {
		deps := make([]string, 0, len(t.Dependencies))
		for _, d := range t.Dependencies {
			deps = append(deps, strconv.FormatUint(d, 10))
		}
		adj[strconv.FormatUint(t.TaskID, 10)] = deps
	}
	return adj
}

// LedgerIDs returns the decimal ids of tasks in the given order.
func LedgerIDs(tasks []domain.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, strconv.FormatUint(t.TaskID, 10))
	}
	return ids
}

// Ready lists tasks that can take a claim right now: open, not under
// dispute, with every dependency holding at least one receipt. tasks must
// all belong to one graph.
func Ready(tasks []domain.Task) []domain.Task {
	byID := make(map[uint64]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.TaskID] = t
	}
	var ready []domain.Task
	for _, t := range tasks {
		if t.Status != domain.TaskOpen || t.DisputeStatus != domain.DisputeNone {
			continue
		}
		ok := true
		for _, d := range t.Dependencies {
			if dep, found := byID[d]; !found || dep.ReceiptCount == 0 {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}
