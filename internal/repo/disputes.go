package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bountygraph/internal/domain"
)

const disputeColumns = `address,task,creator,worker,raised_by,reason,status,raised_slot,resolved_slot,arbiter,creator_pct,worker_pct,creator_amount,worker_amount,expired`

func (r Repo) InsertDispute(ctx context.Context, tx *sql.Tx, d domain.Dispute) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO disputes(address,task,creator,worker,raised_by,reason,status,raised_slot) VALUES (?,?,?,?,?,?,?,?)`,
		d.Address, d.Task, d.Creator, d.Worker, d.RaisedBy, d.Reason, d.Status, int64(d.RaisedSlot))
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

// ResolveDispute records the settlement outcome on a raised dispute.
func (r Repo) ResolveDispute(ctx context.Context, tx *sql.Tx, d domain.Dispute) error {
	slot, err := nullableUint64Ptr(d.ResolvedSlot)
	if err != nil {
		return err
	}
	creatorAmount, err := nullableUint64Ptr(d.CreatorAmount)
	if err != nil {
		return err
	}
	workerAmount, err := nullableUint64Ptr(d.WorkerAmount)
	if err != nil {
		return err
	}
	var arbiter any
	if d.Arbiter != nil {
		arbiter = *d.Arbiter
	}
	res, err := tx.ExecContext(ctx, `UPDATE disputes SET status=?, resolved_slot=?, arbiter=?, creator_pct=?, worker_pct=?, creator_amount=?, worker_amount=?, expired=? WHERE address=? AND status=?`,
		d.Status, slot, arbiter, nullableUint8Ptr(d.CreatorPct), nullableUint8Ptr(d.WorkerPct), creatorAmount, workerAmount, boolInt(d.Expired), d.Address, domain.DisputeRaised)
	if err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDispute(row interface{ Scan(...any) error }) (domain.Dispute, error) {
	var d domain.Dispute
	var raisedSlot int64
	var expired int
	var resolvedSlot, creatorPct, workerPct, creatorAmount, workerAmount sql.NullInt64
	var arbiter sql.NullString
	err := row.Scan(&d.Address, &d.Task, &d.Creator, &d.Worker, &d.RaisedBy, &d.Reason, &d.Status, &raisedSlot,
		&resolvedSlot, &arbiter, &creatorPct, &workerPct, &creatorAmount, &workerAmount, &expired)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.RaisedSlot = uint64(raisedSlot)
	d.ResolvedSlot = uint64Ptr(resolvedSlot)
	d.Arbiter = stringPtr(arbiter)
	d.CreatorPct = uint8Ptr(creatorPct)
	d.WorkerPct = uint8Ptr(workerPct)
	d.CreatorAmount = uint64Ptr(creatorAmount)
	d.WorkerAmount = uint64Ptr(workerAmount)
	d.Expired = expired != 0
	return d, nil
}

func (r Repo) GetDispute(ctx context.Context, q Querier, address string) (domain.Dispute, error) {
	return scanDispute(q.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE address=?`, address))
}

func (r Repo) GetDisputeByTask(ctx context.Context, q Querier, task string) (domain.Dispute, error) {
	return scanDispute(q.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE task=?`, task))
}

// ListResolvedDisputesByWorker returns resolved disputes naming agent as worker.
func (r Repo) ListResolvedDisputesByWorker(ctx context.Context, q Querier, agent string) ([]domain.Dispute, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE worker=? AND status=? ORDER BY raised_slot ASC`, agent, domain.DisputeResolved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
