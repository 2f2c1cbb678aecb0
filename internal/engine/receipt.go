package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"unicode/utf8"

	"bountygraph/internal/domain"
	"bountygraph/internal/events"
	"bountygraph/internal/repo"
)

type SubmitReceiptOptions struct {
	Task     TaskRef
	Agent    string
	WorkHash [32]byte
	URI      string
}

// SubmitReceipt records an agent's proof of completion. It moves no funds;
// the first receipt on a task satisfies it as a dependency of later tasks.
func (e Engine) SubmitReceipt(ctx context.Context, opts SubmitReceiptOptions) (domain.Receipt, error) {
	var rc domain.Receipt
	stamp, err := e.run(ctx, "submit_receipt", func(t txn) error {
		if err := requireSigner(opts.Agent, "agent"); err != nil {
			return err
		}
		g, task, err := e.loadTask(ctx, t.tx, opts.Task)
		if err != nil {
			return err
		}
		if task.Status != domain.TaskOpen {
			return wrap(ErrTaskNotOpen, "task %s is %s", opts.Task, task.Status)
		}
		if task.DisputeStatus == domain.DisputeResolved {
			return wrap(ErrTaskSettled, "task %s", opts.Task)
		}
		if opts.URI == "" || utf8.RuneCountInString(opts.URI) > e.maxURILen() {
			return wrap(ErrInvalidURI, "length %d", utf8.RuneCountInString(opts.URI))
		}
		_, err = e.Repo.GetReceipt(ctx, t.tx, task.Address, opts.Agent)
		if err == nil {
			return wrap(ErrDuplicateReceipt, "agent %s", opts.Agent)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		for _, dep := range task.Dependencies {
			depTask, err := e.Repo.GetTaskByID(ctx, t.tx, g.Address, dep)
			if errors.Is(err, repo.ErrNotFound) {
				return wrap(ErrDependencyNotSatisfied, "task %d missing", dep)
			}
			if err != nil {
				return err
			}
			if depTask.ReceiptCount == 0 {
				return wrap(ErrDependencyNotSatisfied, "task %d has no receipt", dep)
			}
		}
		if g.SingleClaimant && task.Worker != nil && *task.Worker != opts.Agent {
			return wrap(ErrWorkerAlreadyAssigned, "worker is %s", *task.Worker)
		}
		rc = domain.Receipt{
			Address:       e.Derive.Receipt(task.Address, opts.Agent),
			Task:          task.Address,
			Agent:         opts.Agent,
			WorkHash:      opts.WorkHash,
			WorkHashHex:   hex.EncodeToString(opts.WorkHash[:]),
			URI:           opts.URI,
			SubmittedSlot: t.slot(),
		}
		if err := e.Repo.InsertReceipt(ctx, t.tx, rc); err != nil {
			return err
		}
		task.ReceiptCount++
		if task.Worker == nil {
			task.Worker = ptr(opts.Agent)
		}
		if err := e.Repo.UpdateTask(ctx, t.tx, task); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, t.tx, t.stamp, events.ReceiptSubmitted, g.Address, events.KindReceipt, rc.Address, opts.Agent, events.EventPayload{
			"task":          task.Address,
			"task_id":       task.TaskID,
			"agent":         rc.Agent,
			"work_hash":     rc.WorkHashHex,
			"uri":           rc.URI,
			"receipt_count": task.ReceiptCount,
			"worker":        *task.Worker,
		})
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	e.committed(ctx, "submit_receipt", stamp, "task", opts.Task.String(), "agent", opts.Agent)
	return rc, nil
}

type ClaimRewardOptions struct {
	Task  TaskRef
	Agent string
}

// ClaimResult reports a completed claim.
type ClaimResult struct {
	Task     domain.Task `json:"task"`
	Lamports uint64      `json:"lamports"`
}

// ClaimReward pays the full vault balance to an agent holding a receipt
// and completes the task.
func (e Engine) ClaimReward(ctx context.Context, opts ClaimRewardOptions) (ClaimResult, error) {
	var res ClaimResult
	stamp, err := e.run(ctx, "claim_reward", func(t txn) error {
		if err := requireSigner(opts.Agent, "agent"); err != nil {
			return err
		}
		g, task, err := e.loadTask(ctx, t.tx, opts.Task)
		if err != nil {
			return err
		}
		if _, err := e.Repo.GetReceipt(ctx, t.tx, task.Address, opts.Agent); errors.Is(err, repo.ErrNotFound) {
			return wrap(ErrReceiptNotFound, "agent %s on task %s", opts.Agent, opts.Task)
		} else if err != nil {
			return err
		}
		if task.Status == domain.TaskCompleted {
			return wrap(ErrAlreadyCompleted, "task %s", opts.Task)
		}
		switch task.DisputeStatus {
		case domain.DisputeRaised:
			return wrap(ErrDisputeInProgress, "task %s", opts.Task)
		case domain.DisputeResolved:
			return wrap(ErrTaskSettled, "task %s", opts.Task)
		}
		if g.SingleClaimant {
			if err := e.Auth.RequireWorker(task, opts.Agent); err != nil {
				return wrap(ErrNotDesignatedWorker, "%v", err)
			}
		}
		balance, err := e.vaultBalance(ctx, t.tx, task.Address)
		if err != nil {
			return err
		}
		if balance == 0 {
			return wrap(ErrEmptyEscrow, "task %s", opts.Task)
		}
		if err := e.release(ctx, t, task, opts.Agent, balance); err != nil {
			return err
		}
		task.Status = domain.TaskCompleted
		task.CompletedBy = ptr(opts.Agent)
		task.ClaimedLamports = ptr(balance)
		if err := e.Repo.UpdateTask(ctx, t.tx, task); err != nil {
			return err
		}
		res = ClaimResult{Task: task, Lamports: balance}
		return e.eventWriter().Append(ctx, t.tx, t.stamp, events.RewardClaimed, g.Address, events.KindTask, task.Address, opts.Agent, events.EventPayload{
			"task_id":      task.TaskID,
			"agent":        opts.Agent,
			"amount":       balance,
			"status":       task.Status,
			"completed_by": opts.Agent,
		})
	})
	if err != nil {
		return ClaimResult{}, err
	}
	e.Metrics.RecordLamports(ctx, "claim", res.Lamports)
	e.committed(ctx, "claim_reward", stamp, "task", opts.Task.String(), "agent", opts.Agent, "amount", res.Lamports)
	return res, nil
}

func (e Engine) GetReceipt(ctx context.Context, ref TaskRef, agent string) (domain.Receipt, error) {
	_, task, err := e.loadTask(ctx, e.DB, ref)
	if err != nil {
		return domain.Receipt{}, err
	}
	rc, err := e.Repo.GetReceipt(ctx, e.DB, task.Address, agent)
	if errors.Is(err, repo.ErrNotFound) {
		return rc, wrap(ErrReceiptNotFound, "agent %s on task %s", agent, ref)
	}
	return rc, err
}

func (e Engine) ListReceipts(ctx context.Context, ref TaskRef) ([]domain.Receipt, error) {
	_, task, err := e.loadTask(ctx, e.DB, ref)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListReceipts(ctx, e.DB, task.Address)
}
