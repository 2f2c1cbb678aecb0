package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"bountygraph/internal/domain"
)

const receiptColumns = `address,task,agent,work_hash,uri,submitted_slot`

func (r Repo) InsertReceipt(ctx context.Context, tx *sql.Tx, rc domain.Receipt) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO receipts(`+receiptColumns+`) VALUES (?,?,?,?,?,?)`,
		rc.Address, rc.Task, rc.Agent, rc.WorkHash[:], rc.URI, int64(rc.SubmittedSlot))
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func scanReceipt(row interface{ Scan(...any) error }) (domain.Receipt, error) {
	var rc domain.Receipt
	var hash []byte
	var slot int64
	err := row.Scan(&rc.Address, &rc.Task, &rc.Agent, &hash, &rc.URI, &slot)
	if errors.Is(err, sql.ErrNoRows) {
		return rc, ErrNotFound
	}
	if err != nil {
		return rc, err
	}
	copy(rc.WorkHash[:], hash)
	rc.WorkHashHex = hex.EncodeToString(rc.WorkHash[:])
	rc.SubmittedSlot = uint64(slot)
	return rc, nil
}

func (r Repo) GetReceipt(ctx context.Context, q Querier, task, agent string) (domain.Receipt, error) {
	return scanReceipt(q.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE task=? AND agent=?`, task, agent))
}

func (r Repo) ListReceipts(ctx context.Context, q Querier, task string) ([]domain.Receipt, error) {
	return r.listReceipts(ctx, q, `WHERE task=?`, task)
}

func (r Repo) ListReceiptsByAgent(ctx context.Context, q Querier, agent string) ([]domain.Receipt, error) {
	return r.listReceipts(ctx, q, `WHERE agent=?`, agent)
}

func (r Repo) listReceipts(ctx context.Context, q Querier, where string, arg any) ([]domain.Receipt, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+receiptColumns+` FROM receipts `+where+` ORDER BY submitted_slot ASC, address ASC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}
