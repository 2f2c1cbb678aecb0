package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"bountygraph/internal/domain"
)

func (r Repo) GetAccount(ctx context.Context, q Querier, address string) (domain.Account, error) {
	var a domain.Account
	var lamports int64
	err := q.QueryRowContext(ctx, `SELECT address,owner,lamports FROM accounts WHERE address=?`, address).Scan(&a.Address, &a.Owner, &lamports)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Lamports = uint64(lamports)
	return a, nil
}

// Balance returns the lamports held by address; unknown accounts hold 0.
func (r Repo) Balance(ctx context.Context, q Querier, address string) (uint64, error) {
	a, err := r.GetAccount(ctx, q, address)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Lamports, nil
}

// Credit adds amount to address, creating the account with owner if needed.
// It returns the new balance.
func (r Repo) Credit(ctx context.Context, tx *sql.Tx, address, owner string, amount uint64) (uint64, error) {
	current, err := r.GetAccount(ctx, tx, address)
	exists := true
	if errors.Is(err, ErrNotFound) {
		exists = false
		current = domain.Account{Address: address, Owner: owner}
	} else if err != nil {
		return 0, fmt.Errorf("read account: %w", err)
	}
	if current.Owner != owner {
		return 0, fmt.Errorf("account %s is owned by %s, not %s", address, current.Owner, owner)
	}
	if amount > math.MaxUint64-current.Lamports {
		return 0, ErrOverflow
	}
	next := current.Lamports + amount
	stored, err := storable(next)
	if err != nil {
		return 0, err
	}
	if exists {
		_, err = tx.ExecContext(ctx, `UPDATE accounts SET lamports=? WHERE address=?`, stored, address)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO accounts(address,owner,lamports) VALUES (?,?,?)`, address, owner, stored)
	}
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	return next, nil
}

// Debit removes amount from address, refusing to go below zero. It returns
// the new balance.
func (r Repo) Debit(ctx context.Context, tx *sql.Tx, address string, amount uint64) (uint64, error) {
	current, err := r.GetAccount(ctx, tx, address)
	if errors.Is(err, ErrNotFound) {
		if amount == 0 {
			return 0, nil
		}
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("read account: %w", err)
	}
	if current.Lamports < amount {
		return current.Lamports, ErrInsufficientBalance
	}
	next := current.Lamports - amount
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET lamports=? WHERE address=?`, int64(next), address); err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}
	return next, nil
}

// Transfer moves amount between accounts inside tx. The destination is
// created with toOwner if it does not exist yet.
func (r Repo) Transfer(ctx context.Context, tx *sql.Tx, from, to, toOwner string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if _, err := r.Debit(ctx, tx, from, amount); err != nil {
		return err
	}
	if _, err := r.Credit(ctx, tx, to, toOwner, amount); err != nil {
		return err
	}
	return nil
}

func (r Repo) InsertEscrow(ctx context.Context, tx *sql.Tx, e domain.Escrow) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO accounts(address,owner,lamports) VALUES (?,?,0)`, e.Address, domain.OwnerProgram); err != nil {
		return fmt.Errorf("insert vault account: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO escrows(address,task,salt) VALUES (?,?,?)`, e.Address, e.Task, int64(e.Salt)); err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

func (r Repo) GetEscrowByTask(ctx context.Context, q Querier, task string) (domain.Escrow, error) {
	var e domain.Escrow
	var salt int64
	err := q.QueryRowContext(ctx, `SELECT address,task,salt FROM escrows WHERE task=?`, task).Scan(&e.Address, &e.Task, &salt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Salt = uint8(salt)
	return e, nil
}

// TotalLamports sums balances by owner; used for conservation checks.
func (r Repo) TotalLamports(ctx context.Context, q Querier, owner string) (uint64, error) {
	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(lamports),0) FROM accounts WHERE owner=?`, owner).Scan(&total); err != nil {
		return 0, err
	}
	return uint64(total), nil
}
