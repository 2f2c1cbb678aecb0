package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrOverflow is returned when an amount does not fit the storage range.
	ErrOverflow = errors.New("amount exceeds storable range")
	// ErrInsufficientBalance is returned when a debit would take an account below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Querier is satisfied by both *sql.DB and *sql.Tx so reads can run inside
// an operation's transaction or directly against the database.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NextSlot advances the logical clock and returns the new slot. It must be
// called once per state-changing transaction.
func (r Repo) NextSlot(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var slot int64
	if err := tx.QueryRowContext(ctx, `UPDATE ledger_clock SET slot=slot+1 WHERE id=1 RETURNING slot`).Scan(&slot); err != nil {
		return 0, fmt.Errorf("advance clock: %w", err)
	}
	return uint64(slot), nil
}

// CurrentSlot returns the slot of the most recent committed transaction.
func (r Repo) CurrentSlot(ctx context.Context, q Querier) (uint64, error) {
	var slot int64
	if err := q.QueryRowContext(ctx, `SELECT slot FROM ledger_clock WHERE id=1`).Scan(&slot); err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return uint64(slot), nil
}

func storable(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, ErrOverflow
	}
	return int64(v), nil
}

// taskKey maps a task id onto the signed INTEGER column by flipping the
// sign bit, so SQL comparison and ORDER BY follow unsigned order across the
// whole uint64 range.
func taskKey(id uint64) int64 {
	return int64(id ^ (1 << 63))
}

func taskIDFromKey(k int64) uint64 {
	return uint64(k) ^ (1 << 63)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableUint64Ptr(v *uint64) (any, error) {
	if v == nil {
		return nil, nil
	}
	return storable(*v)
}

func nullableUint8Ptr(v *uint8) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func uint64Ptr(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}

func uint8Ptr(v sql.NullInt64) *uint8 {
	if !v.Valid {
		return nil
	}
	u := uint8(v.Int64)
	return &u
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
