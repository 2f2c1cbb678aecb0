// Package dag holds advisory dependency checks for task plans that have
// not been submitted yet, and scheduling helpers over created tasks.
//
// The ledger itself needs none of this: a task may only depend on tasks
// that already exist, so creation order is already a topological order.
// These helpers serve clients validating a batch before submitting any of
// it, and schedulers computing parallel layers.
package dag

import (
	"errors"
	"fmt"

	"github.com/gammazero/toposort"
)

var (
	ErrEmptyID      = errors.New("empty task id")
	ErrNotAscending = errors.New("dependency list must be strictly ascending")
	ErrDuplicate    = errors.New("duplicate id")
	ErrCycle        = errors.New("dependency cycle")
	ErrUnknownTask  = errors.New("dependency on unknown task")
)

// Adjacency maps a task id to the ids it depends on.
type Adjacency map[string][]string

// WouldCreateCycle reports whether adding the edge candidate -> newDep to
// adjacency closes a cycle. A self edge is always a cycle.
func WouldCreateCycle(candidate, newDep string, adjacency Adjacency) bool {
	if candidate == newDep {
		return true
	}
	const (
		onStack = iota + 1
		done
	)
	state := map[string]int{}
	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case onStack:
			return true
		case done:
			return false
		}
		state[id] = onStack
		next := adjacency[id]
		if id == candidate {
			next = append(append([]string{}, next...), newDep)
		}
		for _, dep := range next {
			if visit(dep) {
				return true
			}
		}
		state[id] = done
		return false
	}
	return visit(candidate)
}

// ValidateDependencyList checks the canonical form of a dependency list:
// non-empty ids in strictly ascending order, which also rules out duplicates.
func ValidateDependencyList(list []string) error {
	for i, id := range list {
		if id == "" {
			return fmt.Errorf("%w at position %d", ErrEmptyID, i)
		}
		if i == 0 {
			continue
		}
		switch prev := list[i-1]; {
		case prev == id:
			return fmt.Errorf("%w: %s", ErrDuplicate, id)
		case prev > id:
			return fmt.Errorf("%w: %s after %s", ErrNotAscending, id, prev)
		}
	}
	return nil
}

// TopologicalSort orders taskIDs so every task follows its dependencies,
// or returns nil when adjacency contains a cycle among them. Dependencies
// outside taskIDs are treated as already satisfied.
func TopologicalSort(taskIDs []string, adjacency Adjacency) []string {
	order, err := sortIDs(taskIDs, adjacency)
	if err != nil {
		return nil
	}
	return order
}

func sortIDs(taskIDs []string, adjacency Adjacency) ([]string, error) {
	known := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		if known[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
		}
		known[id] = true
	}
	edges := make([]toposort.Edge, 0, len(taskIDs))
	for _, id := range taskIDs {
		inGraph := false
		for _, dep := range adjacency[id] {
			if !known[dep] {
				continue
			}
			if dep == id {
				return nil, fmt.Errorf("%w: %s depends on itself", ErrCycle, id)
			}
			edges = append(edges, toposort.Edge{dep, id})
			inGraph = true
		}
		if !inGraph {
			edges = append(edges, toposort.Edge{nil, id})
		}
	}
	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycle, err)
	}
	order := make([]string, 0, len(taskIDs))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(string))
		}
	}
	if len(order) != len(taskIDs) {
		return nil, fmt.Errorf("%w: sorted %d of %d tasks", ErrCycle, len(order), len(taskIDs))
	}
	return order, nil
}

// Batches groups taskIDs into layers that can run in parallel: every task
// sits one layer after its deepest dependency.
func Batches(taskIDs []string, adjacency Adjacency) ([][]string, error) {
	order, err := sortIDs(taskIDs, adjacency)
	if err != nil {
		return nil, err
	}
	depth := make(map[string]int, len(order))
	var layers [][]string
	for _, id := range order {
		d := 0
		for _, dep := range adjacency[id] {
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[id] = d
		if d == len(layers) {
			layers = append(layers, nil)
		}
		layers[d] = append(layers[d], id)
	}
	return layers, nil
}

// PlannedTask is a task a client intends to create.
type PlannedTask struct {
	ID           string   `json:"id" yaml:"id"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// ValidateBatch checks a plan before any of it is submitted: canonical
// dependency lists, unique ids, dependencies resolvable within the plan or
// among existing ids, and no cycle among the planned tasks.
func ValidateBatch(planned []PlannedTask, existing []string) error {
	ids := make([]string, 0, len(planned))
	adjacency := make(Adjacency, len(planned))
	inPlan := make(map[string]bool, len(planned))
	created := make(map[string]bool, len(existing))
	for _, id := range existing {
		created[id] = true
	}
	for _, p := range planned {
		if p.ID == "" {
			return ErrEmptyID
		}
		if inPlan[p.ID] || created[p.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
		}
		inPlan[p.ID] = true
		ids = append(ids, p.ID)
	}
	for _, p := range planned {
		if err := ValidateDependencyList(p.Dependencies); err != nil {
			return fmt.Errorf("task %s: %w", p.ID, err)
		}
		for _, dep := range p.Dependencies {
			if dep == p.ID {
				return fmt.Errorf("task %s: %w: self dependency", p.ID, ErrCycle)
			}
			if !inPlan[dep] && !created[dep] {
				return fmt.Errorf("task %s: %w %s", p.ID, ErrUnknownTask, dep)
			}
		}
		adjacency[p.ID] = p.Dependencies
	}
	_, err := sortIDs(ids, adjacency)
	return err
}
