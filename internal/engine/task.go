package engine

import (
	"context"
	"math"

	"bountygraph/internal/domain"
	"bountygraph/internal/events"
	"bountygraph/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Graph          string
	Authority      string
	Creator        string
	TaskID         uint64
	RewardLamports uint64
	Dependencies   []uint64
}

// CreateTask writes a new open task under a graph. Dependencies must name
// tasks that already exist, so creation order is a topological order and
// no cycle can form.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	var task domain.Task
	stamp, err := e.run(ctx, "create_task", func(t txn) error {
		if err := requireSigner(opts.Creator, "creator"); err != nil {
			return err
		}
		g, err := e.loadGraph(ctx, t.tx, opts.Graph)
		if err != nil {
			return err
		}
		if err := e.Auth.RequireAuthority(g, opts.Authority); err != nil {
			return wrap(ErrUnauthorized, "%v", err)
		}
		if opts.RewardLamports == 0 {
			return ErrInvalidReward
		}
		if opts.RewardLamports > math.MaxInt64 {
			return wrap(ErrArithmeticOverflow, "reward %d", opts.RewardLamports)
		}
		if len(opts.Dependencies) > int(g.MaxDependenciesPerTask) {
			return wrap(ErrTooManyDependencies, "%d > %d", len(opts.Dependencies), g.MaxDependenciesPerTask)
		}
		seen := make(map[uint64]struct{}, len(opts.Dependencies))
		for _, dep := range opts.Dependencies {
			if dep == opts.TaskID {
				return wrap(ErrSelfDependency, "task %d", dep)
			}
			if _, dup := seen[dep]; dup {
				return wrap(ErrDuplicateDependency, "task %d", dep)
			}
			seen[dep] = struct{}{}
		}
		exists, err := e.Repo.TaskExists(ctx, t.tx, g.Address, opts.TaskID)
		if err != nil {
			return err
		}
		if exists {
			return wrap(ErrTaskAlreadyExists, "task %d", opts.TaskID)
		}
		for _, dep := range opts.Dependencies {
			ok, err := e.Repo.TaskExists(ctx, t.tx, g.Address, dep)
			if err != nil {
				return err
			}
			if !ok {
				return wrap(ErrDependencyNotFound, "task %d", dep)
			}
		}
		if g.TaskCount == math.MaxUint64 {
			return wrap(ErrArithmeticOverflow, "task counter")
		}
		deps := append([]uint64{}, opts.Dependencies...)
		task = domain.Task{
			Address:        e.Derive.Task(g.Address, opts.TaskID),
			Graph:          g.Address,
			TaskID:         opts.TaskID,
			Creator:        opts.Creator,
			RewardLamports: opts.RewardLamports,
			Status:         domain.TaskOpen,
			DisputeStatus:  domain.DisputeNone,
			Dependencies:   deps,
			CreatedSlot:    t.slot(),
		}
		if err := e.Repo.InsertTask(ctx, t.tx, task); err != nil {
			return err
		}
		if err := e.Repo.SetGraphTaskCount(ctx, t.tx, g.Address, g.TaskCount+1); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, t.tx, t.stamp, events.TaskCreated, g.Address, events.KindTask, task.Address, opts.Creator, events.EventPayload{
			"task_id":         task.TaskID,
			"creator":         task.Creator,
			"reward_lamports": task.RewardLamports,
			"dependencies":    task.Dependencies,
			"status":          task.Status,
			"dispute_status":  task.DisputeStatus,
			"task_count":      g.TaskCount + 1,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.committed(ctx, "create_task", stamp, "graph", task.Graph, "task", task.TaskID, "deps", len(task.Dependencies))
	return task, nil
}

func (e Engine) GetTask(ctx context.Context, ref TaskRef) (domain.Task, error) {
	_, t, err := e.loadTask(ctx, e.DB, ref)
	return t, err
}

// ListTasks returns a graph's tasks in task id order.
func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	if f.Graph != "" {
		if _, err := e.loadGraph(ctx, e.DB, f.Graph); err != nil {
			return nil, err
		}
	}
	return e.Repo.ListTasks(ctx, e.DB, f)
}

// TaskView is a task with its live escrow balance.
type TaskView struct {
	domain.Task
	EscrowAddress  string `json:"escrow_address"`
	EscrowLamports uint64 `json:"escrow_lamports"`
}

func (e Engine) ViewTask(ctx context.Context, ref TaskRef) (TaskView, error) {
	_, t, err := e.loadTask(ctx, e.DB, ref)
	if err != nil {
		return TaskView{}, err
	}
	bal, err := e.vaultBalance(ctx, e.DB, t.Address)
	if err != nil {
		return TaskView{}, err
	}
	return TaskView{Task: t, EscrowAddress: e.Derive.Escrow(t.Address), EscrowLamports: bal}, nil
}
