package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bountygraph/internal/config"
	"bountygraph/internal/derive"
	"bountygraph/internal/domain"
	"bountygraph/internal/engine/auth"
	"bountygraph/internal/events"
	"bountygraph/internal/repo"
	"bountygraph/internal/telemetry"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Auth    auth.Service
	Derive  derive.Deriver
	Config  *config.Config
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Auth:   auth.Service{Repo: r},
		Derive: derive.New(cfg.Ledger.ProgramID),
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) eventWriter() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// txn is the state shared by everything one operation writes.
type txn struct {
	tx    *sql.Tx
	stamp events.Stamp
}

func (t txn) slot() uint64 { return t.stamp.Slot }

// run executes fn inside a single IMMEDIATE transaction that advances the
// logical clock once. Any error rolls back every write, including the slot.
func (e Engine) run(ctx context.Context, op string, fn func(t txn) error) (events.Stamp, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return events.Stamp{}, fmt.Errorf("begin %s: %w", op, err)
	}
	defer tx.Rollback()

	slot, err := e.Repo.NextSlot(ctx, tx)
	if err != nil {
		return events.Stamp{}, err
	}
	t := txn{tx: tx, stamp: events.Stamp{Slot: slot, TxID: uuid.NewString()}}
	if err := fn(t); err != nil {
		err = fromRepo(err)
		e.rejected(ctx, op, err)
		return events.Stamp{}, err
	}
	if err := tx.Commit(); err != nil {
		return events.Stamp{}, fmt.Errorf("commit %s: %w", op, err)
	}
	e.Metrics.RecordOp(ctx, op, "")
	return t.stamp, nil
}

func (e Engine) rejected(ctx context.Context, op string, err error) {
	code := "INTERNAL"
	if le, ok := AsError(err); ok {
		code = le.Code
		e.logger().DebugContext(ctx, "operation rejected", "op", op, "code", code, "err", err)
	} else {
		e.logger().ErrorContext(ctx, "operation failed", "op", op, "err", err)
	}
	e.Metrics.RecordOp(ctx, op, code)
}

func (e Engine) committed(ctx context.Context, op string, stamp events.Stamp, attrs ...any) {
	attrs = append([]any{"op", op, "slot", stamp.Slot, "tx", stamp.TxID}, attrs...)
	e.logger().InfoContext(ctx, "committed", attrs...)
}

// TaskRef addresses a task by its graph and numeric id.
type TaskRef struct {
	Graph  string
	TaskID uint64
}

func (r TaskRef) String() string {
	return fmt.Sprintf("%s/%d", r.Graph, r.TaskID)
}

func (e Engine) loadGraph(ctx context.Context, q repo.Querier, address string) (domain.Graph, error) {
	g, err := e.Repo.GetGraph(ctx, q, address)
	if errors.Is(err, repo.ErrNotFound) {
		return g, wrap(ErrGraphNotFound, "graph %s", address)
	}
	return g, err
}

func (e Engine) loadTask(ctx context.Context, q repo.Querier, ref TaskRef) (domain.Graph, domain.Task, error) {
	g, err := e.loadGraph(ctx, q, ref.Graph)
	if err != nil {
		return g, domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, q, e.Derive.Task(ref.Graph, ref.TaskID))
	if errors.Is(err, repo.ErrNotFound) {
		return g, t, wrap(ErrTaskNotFound, "task %s", ref)
	}
	return g, t, err
}

// vaultBalance reads the task's escrow balance; an unfunded task holds 0.
func (e Engine) vaultBalance(ctx context.Context, q repo.Querier, task string) (uint64, error) {
	return e.Repo.Balance(ctx, q, e.Derive.Escrow(task))
}

func (e Engine) maxURILen() int {
	if e.Config == nil || e.Config.Ledger.MaxURILen <= 0 {
		return 200
	}
	return e.Config.Ledger.MaxURILen
}

func (e Engine) maxReasonLen() int {
	if e.Config == nil || e.Config.Ledger.MaxReasonLen <= 0 {
		return 500
	}
	return e.Config.Ledger.MaxReasonLen
}

func requireSigner(signer, role string) error {
	if err := auth.ValidSigner(signer); err != nil {
		return wrap(ErrInvalidIdentity, "%s", role)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
