package engine

import (
	"context"
	"errors"
	"fmt"

	"bountygraph/internal/derive"
	"bountygraph/internal/domain"
	"bountygraph/internal/events"
	"bountygraph/internal/repo"
)

// InitializeGraphOptions are parameters for creating an authority's graph.
type InitializeGraphOptions struct {
	Authority              string
	MaxDependenciesPerTask *uint16
	SingleClaimant         *bool
}

// InitializeGraph creates the one graph owned by Authority. Unset options
// take their defaults from config.
func (e Engine) InitializeGraph(ctx context.Context, opts InitializeGraphOptions) (domain.Graph, error) {
	var g domain.Graph
	stamp, err := e.run(ctx, "initialize_graph", func(t txn) error {
		if err := requireSigner(opts.Authority, "authority"); err != nil {
			return err
		}
		address := e.Derive.Graph(opts.Authority)
		exists, err := e.Repo.GraphExists(ctx, t.tx, address)
		if err != nil {
			return err
		}
		if exists {
			return wrap(ErrAlreadyInitialized, "authority %s", opts.Authority)
		}
		g = domain.Graph{
			Address:                address,
			Authority:              opts.Authority,
			MaxDependenciesPerTask: e.Config.Ledger.DefaultMaxDependencies,
			SingleClaimant:         e.Config.Ledger.SingleClaimant,
			Salt:                   derive.CanonicalSalt,
			CreatedSlot:            t.slot(),
		}
		if opts.MaxDependenciesPerTask != nil {
			g.MaxDependenciesPerTask = *opts.MaxDependenciesPerTask
		}
		if opts.SingleClaimant != nil {
			g.SingleClaimant = *opts.SingleClaimant
		}
		if err := e.Repo.InsertGraph(ctx, t.tx, g); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, t.tx, t.stamp, events.GraphInitialized, g.Address, events.KindGraph, g.Address, g.Authority, events.EventPayload{
			"authority":                 g.Authority,
			"max_dependencies_per_task": g.MaxDependenciesPerTask,
			"single_claimant":           g.SingleClaimant,
			"salt":                      g.Salt,
			"task_count":                g.TaskCount,
		})
	})
	if err != nil {
		return domain.Graph{}, err
	}
	e.committed(ctx, "initialize_graph", stamp, "graph", g.Address, "authority", g.Authority)
	return g, nil
}

func (e Engine) GetGraph(ctx context.Context, address string) (domain.Graph, error) {
	return e.loadGraph(ctx, e.DB, address)
}

// GraphFor looks up the graph owned by authority.
func (e Engine) GraphFor(ctx context.Context, authority string) (domain.Graph, error) {
	g, err := e.Repo.GetGraph(ctx, e.DB, e.Derive.Graph(authority))
	if errors.Is(err, repo.ErrNotFound) {
		return g, wrap(ErrGraphNotFound, "no graph for authority %s", authority)
	}
	if err != nil {
		return g, fmt.Errorf("load graph: %w", err)
	}
	return g, nil
}
