package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bountygraph/internal/domain"
)

const taskColumns = `address,graph,task_id,creator,reward_lamports,status,dispute_status,receipt_count,worker,completed_by,claimed_lamports,created_slot,disputed_by,dispute_raised_slot,resolved_by,dispute_resolved_slot,worker_award_lamports`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	reward, err := storable(t.RewardLamports)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(address,graph,task_id,creator,reward_lamports,status,dispute_status,receipt_count,created_slot) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.Address, t.Graph, taskKey(t.TaskID), t.Creator, reward, t.Status, t.DisputeStatus, int64(t.ReceiptCount), int64(t.CreatedSlot)); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	for i, dep := range t.Dependencies {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_deps(task,position,depends_on_task_id) VALUES (?,?,?)`, t.Address, i, taskKey(dep)); err != nil {
			return fmt.Errorf("insert task dependency: %w", err)
		}
	}
	return nil
}

// UpdateTask writes every mutable task field. Dependencies are immutable.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	raisedSlot, err := nullableUint64Ptr(t.DisputeRaisedSlot)
	if err != nil {
		return err
	}
	resolvedSlot, err := nullableUint64Ptr(t.DisputeResolvedSlot)
	if err != nil {
		return err
	}
	award, err := nullableUint64Ptr(t.WorkerAwardLamports)
	if err != nil {
		return err
	}
	claimed, err := nullableUint64Ptr(t.ClaimedLamports)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, dispute_status=?, receipt_count=?, worker=?, completed_by=?, claimed_lamports=?, disputed_by=?, dispute_raised_slot=?, resolved_by=?, dispute_resolved_slot=?, worker_award_lamports=? WHERE address=?`,
		t.Status, t.DisputeStatus, int64(t.ReceiptCount), nullableStringPtr(t.Worker), nullableStringPtr(t.CompletedBy), claimed,
		nullableStringPtr(t.DisputedBy), raisedSlot, nullableStringPtr(t.ResolvedBy), resolvedSlot, award, t.Address)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var taskID, reward, receiptCount, createdSlot int64
	var worker, completedBy, disputedBy, resolvedBy sql.NullString
	var claimed, raisedSlot, resolvedSlot, award sql.NullInt64
	err := row.Scan(&t.Address, &t.Graph, &taskID, &t.Creator, &reward, &t.Status, &t.DisputeStatus, &receiptCount,
		&worker, &completedBy, &claimed, &createdSlot, &disputedBy, &raisedSlot, &resolvedBy, &resolvedSlot, &award)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.TaskID = taskIDFromKey(taskID)
	t.RewardLamports = uint64(reward)
	t.ReceiptCount = uint64(receiptCount)
	t.CreatedSlot = uint64(createdSlot)
	t.Worker = stringPtr(worker)
	t.CompletedBy = stringPtr(completedBy)
	t.ClaimedLamports = uint64Ptr(claimed)
	t.DisputedBy = stringPtr(disputedBy)
	t.ResolvedBy = stringPtr(resolvedBy)
	t.DisputeRaisedSlot = uint64Ptr(raisedSlot)
	t.DisputeResolvedSlot = uint64Ptr(resolvedSlot)
	t.WorkerAwardLamports = uint64Ptr(award)
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, q Querier, address string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE address=?`, address))
	if err != nil {
		return t, err
	}
	t.Dependencies, err = r.ListTaskDependencies(ctx, q, t.Address)
	return t, err
}

func (r Repo) GetTaskByID(ctx context.Context, q Querier, graph string, taskID uint64) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE graph=? AND task_id=?`, graph, taskKey(taskID)))
	if err != nil {
		return t, err
	}
	t.Dependencies, err = r.ListTaskDependencies(ctx, q, t.Address)
	return t, err
}

func (r Repo) TaskExists(ctx context.Context, q Querier, graph string, taskID uint64) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE graph=? AND task_id=?`, graph, taskKey(taskID)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListTaskDependencies returns dependency task ids in declared order.
func (r Repo) ListTaskDependencies(ctx context.Context, q Querier, task string) ([]uint64, error) {
	rows, err := q.QueryContext(ctx, `SELECT depends_on_task_id FROM task_deps WHERE task=? ORDER BY position ASC`, task)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deps := []uint64{}
	for rows.Next() {
		var dep int64
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, taskIDFromKey(dep))
	}
	return deps, rows.Err()
}

type TaskFilters struct {
	Graph         string
	Status        string
	DisputeStatus string
	Creator       string
	Worker        string
	CompletedBy   string
	Limit         int
	// AfterTaskID pages by ascending task id.
	AfterTaskID *uint64
}

func (r Repo) ListTasks(ctx context.Context, q Querier, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Graph != "" {
		clauses = append(clauses, "graph=?")
		args = append(args, f.Graph)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.DisputeStatus != "" {
		clauses = append(clauses, "dispute_status=?")
		args = append(args, f.DisputeStatus)
	}
	if f.Creator != "" {
		clauses = append(clauses, "creator=?")
		args = append(args, f.Creator)
	}
	if f.Worker != "" {
		clauses = append(clauses, "worker=?")
		args = append(args, f.Worker)
	}
	if f.CompletedBy != "" {
		clauses = append(clauses, "completed_by=?")
		args = append(args, f.CompletedBy)
	}
	if f.AfterTaskID != nil {
		clauses = append(clauses, "task_id>?")
		args = append(args, taskKey(*f.AfterTaskID))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY graph ASC, task_id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		deps, err := r.ListTaskDependencies(ctx, q, res[i].Address)
		if err != nil {
			return nil, err
		}
		res[i].Dependencies = deps
	}
	return res, nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, q Querier, graph string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT status, dispute_status, count(*) FROM tasks WHERE graph=? GROUP BY status, dispute_status`, graph)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status, dispute string
		var count int
		if err := rows.Scan(&status, &dispute, &count); err != nil {
			return nil, err
		}
		key := status
		if dispute != domain.DisputeNone {
			key = "disputed." + dispute
		}
		res[key] += count
	}
	return res, rows.Err()
}
