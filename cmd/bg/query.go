package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"bountygraph/internal/dag"
	"bountygraph/internal/domain"
	"bountygraph/internal/engine"
	"bountygraph/internal/repo"
	"bountygraph/internal/server"
)

func eventsCmd() *cobra.Command {
	var eventType, entityKind, entityID string
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent ledger events of the graph, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				items, err := e.Repo.LatestEvents(ctx, limit, repo.EventFilters{
					Graph:      g.Address,
					Type:       eventType,
					EntityKind: entityKind,
					EntityID:   entityID,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Slot", "Type", "Entity", "Actor", "Tx"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.Slot, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.TxID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity address")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	return cmd
}

// plan is the file format accepted by dag check and dag sort.
type plan struct {
	Existing []string          `yaml:"existing"`
	Tasks    []dag.PlannedTask `yaml:"tasks"`
}

func readPlan(path string) (plan, error) {
	var p plan
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return p, nil
}

func dagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dag", Short: "Validate and order task plans"}

	checkCmd := &cobra.Command{
		Use:   "check <plan.yml>",
		Short: "Validate a task plan before creating any of it",
		Long: `Validate a plan file (YAML or JSON):

  existing: ["1"]
  tasks:
    - id: "2"
      dependencies: ["1"]

Without an explicit existing list, the ids of the graph's created tasks are
used when a graph can be resolved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readPlan(args[0])
			if err != nil {
				return err
			}
			if p.Existing == nil {
				p.Existing = ledgerIDs(cmd.Context())
			}
			if err := dag.ValidateBatch(p.Tasks, p.Existing); err != nil {
				if viper.GetBool("json") {
					_ = printJSON(server.DagCheckResponse{Valid: false, Error: err.Error()})
				}
				return err
			}
			if viper.GetBool("json") {
				return printJSON(server.DagCheckResponse{Valid: true})
			}
			fmt.Printf("Plan valid: %d tasks\n", len(p.Tasks))
			return nil
		},
	}

	var file string
	sortCmd := &cobra.Command{
		Use:   "sort",
		Short: "Print a dependency-respecting order of the graph's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				p, err := readPlan(file)
				if err != nil {
					return err
				}
				ids := make([]string, 0, len(p.Tasks))
				adj := make(dag.Adjacency, len(p.Tasks))
				for _, t := range p.Tasks {
					ids = append(ids, t.ID)
					adj[t.ID] = t.Dependencies
				}
				return printOrder(ids, adj)
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				tasks, err := e.ListTasks(ctx, repo.TaskFilters{Graph: g.Address})
				if err != nil {
					return err
				}
				return printOrder(dag.LedgerIDs(tasks), dag.LedgerAdjacency(tasks))
			})
		},
	}
	sortCmd.Flags().StringVar(&file, "file", "", "sort a plan file instead of the graph")

	cmd.AddCommand(checkCmd, sortCmd)
	return cmd
}

// ledgerIDs returns created task ids of the resolved graph, or nil when no
// graph resolves.
func ledgerIDs(ctx context.Context) []string {
	var ids []string
	_ = withGraph(ctx, func(ctx context.Context, e engine.Engine, g domain.Graph) error {
		tasks, err := e.ListTasks(ctx, repo.TaskFilters{Graph: g.Address})
		if err != nil {
			return err
		}
		ids = dag.LedgerIDs(tasks)
		return nil
	})
	return ids
}

func printOrder(ids []string, adj dag.Adjacency) error {
	batches, err := dag.Batches(ids, adj)
	if err != nil {
		return err
	}
	order := dag.TopologicalSort(ids, adj)
	if viper.GetBool("json") {
		return printJSON(server.DagSortResponse{Order: order, Batches: batches})
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Batch", "Tasks"})
	for i, b := range batches {
		tw.AppendRow(table.Row{i + 1, strings.Join(b, ", ")})
	}
	tw.Render()
	return nil
}

func reputationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reputation [agent]",
		Short: "Score an agent from its ledger history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := viper.GetString("signer")
			if len(args) == 1 {
				agent = args[0]
			}
			if strings.TrimSpace(agent) == "" {
				return fmt.Errorf("agent argument or --signer required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Reputation(ctx, agent)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Agent", s.Agent},
					{"Points", s.Points},
					{"Level", fmt.Sprintf("%d (%s)", s.Level.Level, s.Level.Name)},
					{"Next threshold", s.Level.NextThreshold},
					{"Receipts", s.Facts.ReceiptsSubmitted},
					{"Claims", s.Facts.RewardsClaimed},
					{"Lamports earned", s.Facts.LamportsEarned},
					{"Disputes won", s.Facts.DisputesWon},
					{"Disputes lost", s.Facts.DisputesLost},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for the signer",
		Long:  "Mint an HS256 bearer token for the signer using BOUNTYGRAPH_JWT_SECRET.",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			token, err := server.SignToken(viper.GetString("jwt-secret"), signer, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"signer": signer, "token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 never expires")
	return cmd
}
