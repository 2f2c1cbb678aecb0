package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bountygraph/internal/domain"
)

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestTopologicalSortDiamond(t *testing.T) {
	adj := Adjacency{"A": {"B", "C"}, "B": {"D"}, "C": {"D"}}
	order := TopologicalSort([]string{"A", "B", "C", "D"}, adj)
	require.Len(t, order, 4)
	assert.Less(t, indexOf(order, "D"), indexOf(order, "B"))
	assert.Less(t, indexOf(order, "D"), indexOf(order, "C"))
	assert.Less(t, indexOf(order, "B"), indexOf(order, "A"))
	assert.Less(t, indexOf(order, "C"), indexOf(order, "A"))
}

func TestTopologicalSortCycle(t *testing.T) {
	adj := Adjacency{"A": {"B"}, "B": {"C"}, "C": {"A"}}
	assert.Nil(t, TopologicalSort([]string{"A", "B", "C"}, adj))
}

func TestTopologicalSortIgnoresOutsideDeps(t *testing.T) {
	adj := Adjacency{"B": {"A", "Z"}}
	assert.Equal(t, []string{"A", "B"}, TopologicalSort([]string{"A", "B"}, adj))
}

func TestWouldCreateCycle(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
		dep       string
		adj       Adjacency
		want      bool
	}{
		{"self", "A", "A", Adjacency{}, true},
		{"back edge", "A", "B", Adjacency{"B": {"A"}}, true},
		{"transitive", "A", "C", Adjacency{"C": {"B"}, "B": {"A"}}, true},
		{"unrelated", "C", "B", Adjacency{"A": {"B"}}, false},
		{"diamond", "E", "A", Adjacency{"A": {"B", "C"}, "B": {"D"}, "C": {"D"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WouldCreateCycle(tc.candidate, tc.dep, tc.adj))
		})
	}
}

func TestWouldCreateCycleLeavesAdjacencyUntouched(t *testing.T) {
	adj := Adjacency{"A": {"B"}}
	WouldCreateCycle("A", "C", adj)
	assert.Equal(t, Adjacency{"A": {"B"}}, adj)
}

func TestValidateDependencyList(t *testing.T) {
	assert.NoError(t, ValidateDependencyList(nil))
	assert.NoError(t, ValidateDependencyList([]string{"a", "b", "c"}))
	assert.ErrorIs(t, ValidateDependencyList([]string{"a", ""}), ErrEmptyID)
	assert.ErrorIs(t, ValidateDependencyList([]string{"a", "a"}), ErrDuplicate)
	assert.ErrorIs(t, ValidateDependencyList([]string{"b", "a"}), ErrNotAscending)
}

func TestValidateBatch(t *testing.T) {
	ok := []PlannedTask{
		{ID: "build", Dependencies: []string{"design"}},
		{ID: "design"},
		{ID: "ship", Dependencies: []string{"build", "review"}},
	}
	require.NoError(t, ValidateBatch(ok, []string{"review"}))

	assert.ErrorIs(t, ValidateBatch([]PlannedTask{{ID: "a"}, {ID: "a"}}, nil), ErrDuplicate)
	assert.ErrorIs(t, ValidateBatch([]PlannedTask{{ID: "a"}}, []string{"a"}), ErrDuplicate)
	assert.ErrorIs(t, ValidateBatch([]PlannedTask{{ID: "a", Dependencies: []string{"x"}}}, nil), ErrUnknownTask)
	assert.ErrorIs(t, ValidateBatch([]PlannedTask{{ID: "a", Dependencies: []string{"a"}}}, nil), ErrCycle)
	cyclic := []PlannedTask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	assert.ErrorIs(t, ValidateBatch(cyclic, nil), ErrCycle)
}

func TestBatches(t *testing.T) {
	adj := Adjacency{"A": {"B", "C"}, "B": {"D"}, "C": {"D"}}
	layers, err := Batches([]string{"A", "B", "C", "D"}, adj)
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"D"}, layers[0])
	assert.ElementsMatch(t, []string{"B", "C"}, layers[1])
	assert.Equal(t, []string{"A"}, layers[2])

	_, err = Batches([]string{"A", "B"}, Adjacency{"A": {"B"}, "B": {"A"}})
	assert.ErrorIs(t, err, ErrCycle)
}

func TestReady(t *testing.T) {
	tasks := []domain.Task{
		{TaskID: 1, Status: domain.TaskOpen, DisputeStatus: domain.DisputeNone, ReceiptCount: 1},
		{TaskID: 2, Status: domain.TaskOpen, DisputeStatus: domain.DisputeNone, Dependencies: []uint64{1}},
		{TaskID: 3, Status: domain.TaskOpen, DisputeStatus: domain.DisputeNone, Dependencies: []uint64{2}},
		{TaskID: 4, Status: domain.TaskCompleted, DisputeStatus: domain.DisputeNone},
		{TaskID: 5, Status: domain.TaskOpen, DisputeStatus: domain.DisputeRaised},
	}
	var ids []uint64
	for _, r := range Ready(tasks) {
		ids = append(ids, r.TaskID)
	}
	assert.Equal(t, []uint64{1, 2}, ids)
}

func TestLedgerAdjacency(t *testing.T) {
	tasks := []domain.Task{{TaskID: 1}, {TaskID: 2, Dependencies: []uint64{1}}}
	adj := LedgerAdjacency(tasks)
	assert.Equal(t, Adjacency{"1": {}, "2": {"1"}}, adj)
	assert.Equal(t, []string{"1", "2"}, TopologicalSort(LedgerIDs(tasks), adj))
}
