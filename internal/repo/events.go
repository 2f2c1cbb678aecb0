package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bountygraph/internal/domain"
)

type EventFilters struct {
	Graph      string
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
	TxID       string
}

func (f EventFilters) where(extra ...string) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.Graph != "" {
		clauses = append(clauses, "graph=?")
		args = append(args, f.Graph)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.TxID != "" {
		clauses = append(clauses, "tx_id=?")
		args = append(args, f.TxID)
	}
	clauses = append(clauses, extra...)
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilters) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

// LatestEventsFrom returns events newest first, strictly older than cursor
// when cursor is positive.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilters) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var extra []string
	if cursor > 0 {
		extra = append(extra, "id<?")
	}
	where, args := f.where(extra...)
	if cursor > 0 {
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,slot,tx_id,ts,type,graph,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, f EventFilters) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var extra []string
	if cursor > 0 {
		extra = append(extra, "id>?")
	}
	where, args := f.where(extra...)
	if cursor > 0 {
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,slot,tx_id,ts,type,graph,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var slot int64
		var graph, entityID sql.NullString
		if err := rows.Scan(&e.ID, &slot, &e.TxID, &e.TS, &e.Type, &graph, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.Slot = uint64(slot)
		e.Graph = graph.String
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, optionally within a graph.
func (r Repo) LatestEventID(ctx context.Context, graph string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if graph != "" {
		query += ` WHERE graph=?`
		args = append(args, graph)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
