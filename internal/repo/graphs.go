package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bountygraph/internal/domain"
)

const graphColumns = `address,authority,max_dependencies_per_task,task_count,single_claimant,salt,created_slot`

func (r Repo) InsertGraph(ctx context.Context, tx *sql.Tx, g domain.Graph) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO graphs(`+graphColumns+`) VALUES (?,?,?,?,?,?,?)`,
		g.Address, g.Authority, int64(g.MaxDependenciesPerTask), int64(g.TaskCount), boolInt(g.SingleClaimant), int64(g.Salt), int64(g.CreatedSlot))
	if err != nil {
		return fmt.Errorf("insert graph: %w", err)
	}
	return nil
}

func scanGraph(row interface{ Scan(...any) error }) (domain.Graph, error) {
	var g domain.Graph
	var maxDeps, taskCount, salt, createdSlot int64
	var single int
	err := row.Scan(&g.Address, &g.Authority, &maxDeps, &taskCount, &single, &salt, &createdSlot)
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	g.MaxDependenciesPerTask = uint16(maxDeps)
	g.TaskCount = uint64(taskCount)
	g.SingleClaimant = single != 0
	g.Salt = uint8(salt)
	g.CreatedSlot = uint64(createdSlot)
	return g, nil
}

func (r Repo) GetGraph(ctx context.Context, q Querier, address string) (domain.Graph, error) {
	return scanGraph(q.QueryRowContext(ctx, `SELECT `+graphColumns+` FROM graphs WHERE address=?`, address))
}

func (r Repo) GraphExists(ctx context.Context, q Querier, address string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM graphs WHERE address=?`, address).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetGraphTaskCount writes the counter; callers compute the checked increment.
func (r Repo) SetGraphTaskCount(ctx context.Context, tx *sql.Tx, address string, count uint64) error {
	v, err := storable(count)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE graphs SET task_count=? WHERE address=?`, v, address)
	if err != nil {
		return fmt.Errorf("update graph counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListGraphs(ctx context.Context, q Querier) ([]domain.Graph, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+graphColumns+` FROM graphs ORDER BY created_slot ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Graph
	for rows.Next() {
		g, err := scanGraph(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}
