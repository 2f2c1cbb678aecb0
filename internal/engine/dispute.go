package engine

import (
	"context"
	"errors"
	"math/bits"
	"unicode/utf8"

	"bountygraph/internal/domain"
	"bountygraph/internal/engine/auth"
	"bountygraph/internal/events"
	"bountygraph/internal/repo"
)

type DisputeTaskOptions struct {
	Task      TaskRef
	Initiator string
	Reason    string
}

// DisputeTask freezes normal settlement of a funded task pending arbitration.
func (e Engine) DisputeTask(ctx context.Context, opts DisputeTaskOptions) (domain.Dispute, error) {
	var d domain.Dispute
	stamp, err := e.run(ctx, "dispute_task", func(t txn) error {
		if opts.Reason == "" || utf8.RuneCountInString(opts.Reason) > e.maxReasonLen() {
			return wrap(ErrInvalidReason, "length %d", utf8.RuneCountInString(opts.Reason))
		}
		if err := requireSigner(opts.Initiator, "initiator"); err != nil {
			return err
		}
		g, task, err := e.loadTask(ctx, t.tx, opts.Task)
		if err != nil {
			return err
		}
		role, err := e.Auth.DisputeRole(ctx, t.tx, task, opts.Initiator)
		var forbidden auth.ForbiddenError
		if errors.As(err, &forbidden) {
			return wrap(ErrUnauthorized, "%v", err)
		}
		if err != nil {
			return err
		}
		if task.DisputeStatus != domain.DisputeNone {
			return wrap(ErrDisputeAlreadyExists, "task %s is %s", opts.Task, task.DisputeStatus)
		}
		balance, err := e.vaultBalance(ctx, t.tx, task.Address)
		if err != nil {
			return err
		}
		if balance == 0 {
			return wrap(ErrTaskNotFunded, "task %s", opts.Task)
		}
		worker := ""
		if role == auth.RoleAgent {
			worker = opts.Initiator
		} else if task.Worker != nil {
			worker = *task.Worker
		}
		d = domain.Dispute{
			Address:    e.Derive.Dispute(task.Address, opts.Initiator),
			Task:       task.Address,
			Creator:    task.Creator,
			Worker:     worker,
			RaisedBy:   opts.Initiator,
			Reason:     opts.Reason,
			Status:     domain.DisputeRaised,
			RaisedSlot: t.slot(),
		}
		if err := e.Repo.InsertDispute(ctx, t.tx, d); err != nil {
			return err
		}
		task.DisputeStatus = domain.DisputeRaised
		task.DisputedBy = ptr(opts.Initiator)
		task.DisputeRaisedSlot = ptr(t.slot())
		if err := e.Repo.UpdateTask(ctx, t.tx, task); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, t.tx, t.stamp, events.DisputeRaised, g.Address, events.KindDispute, d.Address, opts.Initiator, events.EventPayload{
			"task":            task.Address,
			"task_id":         task.TaskID,
			"creator":         d.Creator,
			"worker":          d.Worker,
			"raised_by":       d.RaisedBy,
			"reason":          d.Reason,
			"escrow_lamports": balance,
		})
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	e.committed(ctx, "dispute_task", stamp, "task", opts.Task.String(), "initiator", opts.Initiator)
	return d, nil
}

type ResolveDisputeOptions struct {
	Task    TaskRef
	Arbiter string
	// Initiator selects the dispute record; empty looks it up by task.
	Initiator  string
	Creator    string
	Worker     string
	CreatorPct uint8
	WorkerPct  uint8
}

// ResolveDispute settles a raised dispute with the arbiter's split,
// draining the vault between creator and worker.
func (e Engine) ResolveDispute(ctx context.Context, opts ResolveDisputeOptions) (domain.Dispute, error) {
	var d domain.Dispute
	stamp, err := e.run(ctx, "resolve_dispute", func(t txn) error {
		if err := validateSplit(opts.CreatorPct, opts.WorkerPct); err != nil {
			return err
		}
		if err := requireSigner(opts.Arbiter, "arbiter"); err != nil {
			return err
		}
		g, task, err := e.loadTask(ctx, t.tx, opts.Task)
		if err != nil {
			return err
		}
		if err := e.Auth.RequireAuthority(g, opts.Arbiter); err != nil {
			return wrap(ErrUnauthorized, "%v", err)
		}
		d, err = e.loadDispute(ctx, t, task, opts.Initiator)
		if err != nil {
			return err
		}
		if d.Status != domain.DisputeRaised {
			return wrap(ErrDisputeNotRaised, "dispute %s is %s", d.Address, d.Status)
		}
		if opts.Creator != d.Creator {
			return wrap(ErrInvalidCreator, "expected %s", d.Creator)
		}
		if opts.Worker != d.Worker {
			return wrap(ErrInvalidWorker, "expected %q", d.Worker)
		}
		if d.Worker == "" && opts.WorkerPct != 0 {
			return wrap(ErrInvalidSplit, "dispute has no worker to pay")
		}
		d, err = e.settle(ctx, t, g, task, d, ptr(opts.Arbiter), opts.Arbiter, opts.CreatorPct, opts.WorkerPct)
		return err
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	e.Metrics.RecordLamports(ctx, "resolve", *d.CreatorAmount+*d.WorkerAmount)
	e.committed(ctx, "resolve_dispute", stamp, "task", opts.Task.String(), "creator_pct", opts.CreatorPct, "worker_pct", opts.WorkerPct)
	return d, nil
}

type ExpireDisputeOptions struct {
	Task      TaskRef
	Initiator string
	Caller    string
}

// ExpireDispute settles a dispute the arbiter left unresolved past the
// configured timeout, using the fallback split.
func (e Engine) ExpireDispute(ctx context.Context, opts ExpireDisputeOptions) (domain.Dispute, error) {
	var d domain.Dispute
	stamp, err := e.run(ctx, "expire_dispute", func(t txn) error {
		if err := requireSigner(opts.Caller, "caller"); err != nil {
			return err
		}
		timeout := e.Config.Disputes.TimeoutSlots
		if timeout == 0 {
			return ErrDisputeTimeoutDisabled
		}
		g, task, err := e.loadTask(ctx, t.tx, opts.Task)
		if err != nil {
			return err
		}
		d, err = e.loadDispute(ctx, t, task, opts.Initiator)
		if err != nil {
			return err
		}
		if d.Status != domain.DisputeRaised {
			return wrap(ErrDisputeNotRaised, "dispute %s is %s", d.Address, d.Status)
		}
		if elapsed := t.slot() - d.RaisedSlot; elapsed < timeout {
			return wrap(ErrDisputeNotExpired, "%d of %d slots elapsed", elapsed, timeout)
		}
		creatorPct := e.Config.Disputes.FallbackCreatorPct
		if d.Worker == "" {
			creatorPct = 100
		}
		d, err = e.settle(ctx, t, g, task, d, nil, opts.Caller, creatorPct, 100-creatorPct)
		return err
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	e.Metrics.RecordLamports(ctx, "expire", *d.CreatorAmount+*d.WorkerAmount)
	e.committed(ctx, "expire_dispute", stamp, "task", opts.Task.String(), "caller", opts.Caller)
	return d, nil
}

func validateSplit(creatorPct, workerPct uint8) error {
	if creatorPct > 100 || workerPct > 100 || int(creatorPct)+int(workerPct) != 100 {
		return wrap(ErrInvalidSplit, "%d + %d", creatorPct, workerPct)
	}
	return nil
}

// SplitAmounts divides balance so the creator gets floor(balance*pct/100)
// and the worker gets the remainder. The product is taken at 128 bits.
func SplitAmounts(balance uint64, creatorPct uint8) (creatorAmount, workerAmount uint64) {
	hi, lo := bits.Mul64(balance, uint64(creatorPct))
	creatorAmount, _ = bits.Div64(hi, lo, 100)
	return creatorAmount, balance - creatorAmount
}

func (e Engine) loadDispute(ctx context.Context, t txn, task domain.Task, initiator string) (domain.Dispute, error) {
	var (
		d   domain.Dispute
		err error
	)
	if initiator != "" {
		d, err = e.Repo.GetDispute(ctx, t.tx, e.Derive.Dispute(task.Address, initiator))
	} else {
		d, err = e.Repo.GetDisputeByTask(ctx, t.tx, task.Address)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return d, wrap(ErrDisputeNotFound, "task %d", task.TaskID)
	}
	return d, err
}

// settle drains the vault per the split and marks dispute and task resolved.
func (e Engine) settle(ctx context.Context, t txn, g domain.Graph, task domain.Task, d domain.Dispute, arbiter *string, resolver string, creatorPct, workerPct uint8) (domain.Dispute, error) {
	balance, err := e.vaultBalance(ctx, t.tx, task.Address)
	if err != nil {
		return d, err
	}
	creatorAmount, workerAmount := SplitAmounts(balance, creatorPct)
	if err := e.release(ctx, t, task, d.Creator, creatorAmount); err != nil {
		return d, err
	}
	if err := e.release(ctx, t, task, d.Worker, workerAmount); err != nil {
		return d, err
	}
	d.Status = domain.DisputeResolved
	d.ResolvedSlot = ptr(t.slot())
	d.Arbiter = arbiter
	d.CreatorPct = ptr(creatorPct)
	d.WorkerPct = ptr(workerPct)
	d.CreatorAmount = ptr(creatorAmount)
	d.WorkerAmount = ptr(workerAmount)
	d.Expired = arbiter == nil
	if err := e.Repo.ResolveDispute(ctx, t.tx, d); err != nil {
		return d, err
	}
	task.DisputeStatus = domain.DisputeResolved
	task.ResolvedBy = ptr(resolver)
	task.DisputeResolvedSlot = ptr(t.slot())
	task.WorkerAwardLamports = ptr(workerAmount)
	if err := e.Repo.UpdateTask(ctx, t.tx, task); err != nil {
		return d, err
	}
	return d, e.eventWriter().Append(ctx, t.tx, t.stamp, events.DisputeResolved, g.Address, events.KindDispute, d.Address, resolver, events.EventPayload{
		"task":           task.Address,
		"task_id":        task.TaskID,
		"creator":        d.Creator,
		"worker":         d.Worker,
		"creator_pct":    creatorPct,
		"worker_pct":     workerPct,
		"creator_amount": creatorAmount,
		"worker_amount":  workerAmount,
		"expired":        d.Expired,
	})
}

func (e Engine) GetDispute(ctx context.Context, ref TaskRef) (domain.Dispute, error) {
	_, task, err := e.loadTask(ctx, e.DB, ref)
	if err != nil {
		return domain.Dispute{}, err
	}
	d, err := e.Repo.GetDisputeByTask(ctx, e.DB, task.Address)
	if errors.Is(err, repo.ErrNotFound) {
		return d, wrap(ErrDisputeNotFound, "task %s", ref)
	}
	return d, err
}
