package engine

import (
	"context"
	"errors"

	"bountygraph/internal/derive"
	"bountygraph/internal/domain"
	"bountygraph/internal/events"
	"bountygraph/internal/repo"
)

type FundTaskOptions struct {
	Task   TaskRef
	Funder string
	Amount uint64
}

// FundResult reports the vault after a funding.
type FundResult struct {
	Escrow   domain.Escrow `json:"escrow"`
	Lamports uint64        `json:"lamports"`
}

// FundTask moves lamports from Funder into the task's vault, creating the
// vault on first funding. Settled vaults accept no further funds.
func (e Engine) FundTask(ctx context.Context, opts FundTaskOptions) (FundResult, error) {
	var res FundResult
	stamp, err := e.run(ctx, "fund_task", func(t txn) error {
		if err := requireSigner(opts.Funder, "funder"); err != nil {
			return err
		}
		if opts.Amount == 0 {
			return ErrInvalidAmount
		}
		_, task, err := e.loadTask(ctx, t.tx, opts.Task)
		if err != nil {
			return err
		}
		if task.Settled() {
			return wrap(ErrTaskSettled, "task %s", opts.Task)
		}
		funder, err := e.Repo.GetAccount(ctx, t.tx, opts.Funder)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if funder.Owner == domain.OwnerProgram {
			return wrap(ErrUnauthorized, "program-owned account %s cannot sign", opts.Funder)
		}
		if balance := funder.Lamports; balance < opts.Amount {
			return wrap(ErrInsufficientFunds, "funder %s holds %d, needs %d", opts.Funder, balance, opts.Amount)
		}
		escrow, err := e.Repo.GetEscrowByTask(ctx, t.tx, task.Address)
		if errors.Is(err, repo.ErrNotFound) {
			escrow = domain.Escrow{Address: e.Derive.Escrow(task.Address), Task: task.Address, Salt: derive.CanonicalSalt}
			if err := e.Repo.InsertEscrow(ctx, t.tx, escrow); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if _, err := e.Repo.Debit(ctx, t.tx, opts.Funder, opts.Amount); err != nil {
			return err
		}
		vault, err := e.Repo.Credit(ctx, t.tx, escrow.Address, domain.OwnerProgram, opts.Amount)
		if err != nil {
			return err
		}
		res = FundResult{Escrow: escrow, Lamports: vault}
		return e.eventWriter().Append(ctx, t.tx, t.stamp, events.TaskFunded, task.Graph, events.KindTask, task.Address, opts.Funder, events.EventPayload{
			"task_id":         task.TaskID,
			"escrow":          escrow.Address,
			"amount":          opts.Amount,
			"escrow_lamports": vault,
		})
	})
	if err != nil {
		return FundResult{}, err
	}
	e.Metrics.RecordLamports(ctx, "fund", opts.Amount)
	e.committed(ctx, "fund_task", stamp, "task", opts.Task.String(), "amount", opts.Amount, "vault", res.Lamports)
	return res, nil
}

// Deposit credits an identity account. It stands in for the native
// faucet of a local ledger.
func (e Engine) Deposit(ctx context.Context, account string, amount uint64) (domain.Account, error) {
	var acct domain.Account
	stamp, err := e.run(ctx, "deposit", func(t txn) error {
		if err := requireSigner(account, "account"); err != nil {
			return err
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		existing, err := e.Repo.GetAccount(ctx, t.tx, account)
		if err == nil && existing.Owner != domain.OwnerSystem {
			return wrap(ErrUnauthorized, "account %s is program-owned", account)
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		bal, err := e.Repo.Credit(ctx, t.tx, account, domain.OwnerSystem, amount)
		if err != nil {
			return err
		}
		acct = domain.Account{Address: account, Owner: domain.OwnerSystem, Lamports: bal}
		return e.eventWriter().Append(ctx, t.tx, t.stamp, events.AccountDeposited, "", events.KindAccount, account, account, events.EventPayload{
			"amount":   amount,
			"lamports": bal,
		})
	})
	if err != nil {
		return domain.Account{}, err
	}
	e.Metrics.RecordLamports(ctx, "deposit", amount)
	e.committed(ctx, "deposit", stamp, "account", account, "amount", amount)
	return acct, nil
}

// Account reads an account; unknown identities read as an empty system account.
func (e Engine) Account(ctx context.Context, address string) (domain.Account, error) {
	a, err := e.Repo.GetAccount(ctx, e.DB, address)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Account{Address: address, Owner: domain.OwnerSystem}, nil
	}
	return a, err
}

func (e Engine) Balance(ctx context.Context, address string) (uint64, error) {
	return e.Repo.Balance(ctx, e.DB, address)
}

// release pays amount out of a task vault to a system account.
func (e Engine) release(ctx context.Context, t txn, task domain.Task, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if to == "" {
		return wrap(ErrInvalidIdentity, "release recipient")
	}
	return e.Repo.Transfer(ctx, t.tx, e.Derive.Escrow(task.Address), to, domain.OwnerSystem, amount)
}
