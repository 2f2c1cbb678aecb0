// Package app wires a workspace into a ready engine for the CLI and server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"bountygraph/internal/config"
	"bountygraph/internal/db"
	"bountygraph/internal/domain"
	"bountygraph/internal/engine"
	"bountygraph/internal/migrate"
	"bountygraph/internal/telemetry"
)

// Options select the workspace and ambient services for a Runtime.
type Options struct {
	Workspace string
	Logger    *slog.Logger
	// Telemetry installs the Prometheus-backed meter provider when the
	// config enables it.
	Telemetry bool
}

// Runtime bundles the open database with the engine over it.
type Runtime struct {
	Engine    engine.Engine
	Config    *config.Config
	DB        *sql.DB
	Telemetry *telemetry.Provider
}

// Open loads the workspace config (defaults when absent), opens and
// migrates the database, and builds the engine.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	e := engine.New(conn, cfg)
	if opts.Logger != nil {
		e.Logger = opts.Logger
		if len(applied) > 0 {
			opts.Logger.DebugContext(ctx, "applied migrations", "migrations", applied)
		}
	}
	rt := &Runtime{Engine: e, Config: cfg, DB: conn}
	if opts.Telemetry && cfg.Telemetry.Enabled {
		provider, err := telemetry.InitMeterProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		metrics, err := telemetry.NewMetrics(provider.Meter())
		if err != nil {
			provider.Shutdown(ctx)
			conn.Close()
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		rt.Telemetry = provider
		rt.Engine.Metrics = metrics
	}
	return rt, nil
}

func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return errors.Join(r.Telemetry.Shutdown(ctx), r.DB.Close())
}

// InitWorkspace creates the workspace directory, writes the default config
// if none exists, and migrates the database. It reports whether a config
// file was written.
func InitWorkspace(ctx context.Context, workspace string) (bool, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return false, err
	}
	wrote := false
	path := config.Path(workspace)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
			return false, fmt.Errorf("write config: %w", err)
		}
		wrote = true
	} else if err != nil {
		return false, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return wrote, err
	}
	defer conn.Close()
	if _, err := migrate.MigrateContext(ctx, conn); err != nil {
		return wrote, err
	}
	return wrote, nil
}

// ResolveGraph picks the graph a command acts on: an explicit address, else
// the signer's own graph, else the only graph in the workspace.
func ResolveGraph(ctx context.Context, e engine.Engine, override, signer string) (domain.Graph, error) {
	if override != "" {
		return e.GetGraph(ctx, override)
	}
	if signer != "" {
		g, err := e.GraphFor(ctx, signer)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, engine.ErrGraphNotFound) {
			return g, err
		}
	}
	graphs, err := e.Repo.ListGraphs(ctx, e.DB)
	if err != nil {
		return domain.Graph{}, err
	}
	switch len(graphs) {
	case 0:
		return domain.Graph{}, fmt.Errorf("%w: workspace has no graph; run bg graph init", engine.ErrGraphNotFound)
	case 1:
		return graphs[0], nil
	}
	return domain.Graph{}, fmt.Errorf("workspace has %d graphs; use --graph", len(graphs))
}
