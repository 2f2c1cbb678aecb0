package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bountygraph/internal/dag"
	"bountygraph/internal/domain"
	"bountygraph/internal/engine"
	"bountygraph/internal/repo"
)

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "graph", Short: "Manage the signer's task graph"}

	var maxDeps uint16
	var single bool
	graphInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the graph owned by the signer",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			opts := engine.InitializeGraphOptions{Authority: signer}
			if cmd.Flags().Changed("max-deps") {
				opts.MaxDependenciesPerTask = &maxDeps
			}
			if cmd.Flags().Changed("single-claimant") {
				opts.SingleClaimant = &single
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.InitializeGraph(ctx, opts)
				if err != nil {
					return err
				}
				return printGraph(g)
			})
		},
	}
	graphInitCmd.Flags().Uint16Var(&maxDeps, "max-deps", 0, "maximum dependencies per task (config default when unset)")
	graphInitCmd.Flags().BoolVar(&single, "single-claimant", false, "only the first receipt's agent may claim")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				return printGraph(g)
			})
		},
	}

	cmd.AddCommand(graphInitCmd, showCmd)
	return cmd
}

func printGraph(g domain.Graph) error {
	if viper.GetBool("json") {
		return printJSON(g)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"Address", g.Address},
		{"Authority", g.Authority},
		{"Tasks", g.TaskCount},
		{"Max deps", g.MaxDependenciesPerTask},
		{"Single claimant", g.SingleClaimant},
		{"Created slot", g.CreatedSlot},
	})
	tw.Render()
	return nil
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Create, fund and inspect tasks"}

	var reward uint64
	var deps, creator string
	createCmd := &cobra.Command{
		Use:   "create <task-id>",
		Short: "Create a task in the signer's graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			depIDs, err := parseTaskIDs(deps)
			if err != nil {
				return err
			}
			if creator == "" {
				creator = signer
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					Graph:          g.Address,
					Authority:      signer,
					Creator:        creator,
					TaskID:         id,
					RewardLamports: reward,
					Dependencies:   depIDs,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Created task %d (%s)\n", t.TaskID, t.Address)
				return nil
			})
		},
	}
	createCmd.Flags().Uint64Var(&reward, "reward", 0, "reward in lamports")
	createCmd.Flags().StringVar(&deps, "deps", "", "comma separated dependency task ids, ascending")
	createCmd.Flags().StringVar(&creator, "creator", "", "task creator (defaults to the signer)")
	_ = createCmd.MarkFlagRequired("reward")

	var status, disputeStatus, worker string
	var ready bool
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks of the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				tasks, err := e.ListTasks(ctx, repo.TaskFilters{
					Graph:         g.Address,
					Status:        status,
					DisputeStatus: disputeStatus,
					Worker:        worker,
					Limit:         limit,
				})
				if err != nil {
					return err
				}
				if ready {
					all, err := e.ListTasks(ctx, repo.TaskFilters{Graph: g.Address})
					if err != nil {
						return err
					}
					tasks = intersectReady(tasks, dag.Ready(all))
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Reward", "Status", "Dispute", "Deps", "Receipts", "Worker"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.TaskID, t.RewardLamports, t.Status, t.DisputeStatus, joinIDs(t.Dependencies), t.ReceiptCount, deref(t.Worker)})
				}
				tw.Render()
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by status: open or completed")
	listCmd.Flags().StringVar(&disputeStatus, "dispute-status", "", "filter by dispute status: none, raised or resolved")
	listCmd.Flags().StringVar(&worker, "worker", "", "filter by worker")
	listCmd.Flags().BoolVar(&ready, "ready", false, "only open tasks whose dependencies all have receipts")
	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks")

	showCmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its escrow balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				v, err := e.ViewTask(ctx, engine.TaskRef{Graph: g.Address, TaskID: id})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Task", v.TaskID},
					{"Address", v.Address},
					{"Creator", v.Creator},
					{"Reward", v.RewardLamports},
					{"Status", v.Status},
					{"Dispute", v.DisputeStatus},
					{"Dependencies", joinIDs(v.Dependencies)},
					{"Receipts", v.ReceiptCount},
					{"Worker", deref(v.Worker)},
					{"Completed by", deref(v.CompletedBy)},
					{"Escrow", v.EscrowAddress},
					{"Escrow balance", v.EscrowLamports},
				})
				tw.Render()
				return nil
			})
		},
	}

	var amount uint64
	fundCmd := &cobra.Command{
		Use:   "fund <task-id>",
		Short: "Move lamports from the signer into the task's escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				res, err := e.FundTask(ctx, engine.FundTaskOptions{
					Task:   engine.TaskRef{Graph: g.Address, TaskID: id},
					Funder: signer,
					Amount: amount,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Escrow %s now holds %d lamports\n", res.Escrow.Address, res.Lamports)
				return nil
			})
		},
	}
	fundCmd.Flags().Uint64Var(&amount, "amount", 0, "lamports to deposit into escrow")
	_ = fundCmd.MarkFlagRequired("amount")

	cmd.AddCommand(createCmd, listCmd, showCmd, fundCmd)
	return cmd
}

func intersectReady(tasks, ready []domain.Task) []domain.Task {
	ok := make(map[uint64]struct{}, len(ready))
	for _, t := range ready {
		ok[t.TaskID] = struct{}{}
	}
	out := tasks[:0]
	for _, t := range tasks {
		if _, found := ok[t.TaskID]; found {
			out = append(out, t)
		}
	}
	return out
}

func joinIDs(ids []uint64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ",")
}

func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "receipt", Short: "Submit and list proof-of-work receipts"}

	var hash, file, uri string
	submitCmd := &cobra.Command{
		Use:   "submit <task-id>",
		Short: "Record the signer's receipt for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			workHash, err := resolveWorkHash(hash, file)
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				r, err := e.SubmitReceipt(ctx, engine.SubmitReceiptOptions{
					Task:     engine.TaskRef{Graph: g.Address, TaskID: id},
					Agent:    signer,
					WorkHash: workHash,
					URI:      uri,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				fmt.Printf("Receipt %s recorded at slot %d\n", r.Address, r.SubmittedSlot)
				return nil
			})
		},
	}
	submitCmd.Flags().StringVar(&hash, "hash", "", "hex-encoded 32-byte work hash")
	submitCmd.Flags().StringVar(&file, "file", "", "hash this file with sha256 instead of --hash")
	submitCmd.Flags().StringVar(&uri, "uri", "", "where the work product lives")
	_ = submitCmd.MarkFlagRequired("uri")

	listCmd := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List receipts of a task in submission order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				items, err := e.ListReceipts(ctx, engine.TaskRef{Graph: g.Address, TaskID: id})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Agent", "Slot", "Hash", "URI"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.Agent, r.SubmittedSlot, r.WorkHashHex, r.URI})
				}
				tw.Render()
				return nil
			})
		},
	}

	cmd.AddCommand(submitCmd, listCmd)
	return cmd
}

func resolveWorkHash(hash, file string) ([32]byte, error) {
	var h [32]byte
	switch {
	case hash != "" && file != "":
		return h, fmt.Errorf("use either --hash or --file")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return h, err
		}
		return sha256.Sum256(data), nil
	case hash != "":
		raw, err := hex.DecodeString(strings.TrimSpace(hash))
		if err != nil || len(raw) != len(h) {
			return h, fmt.Errorf("--hash must be 64 hex characters")
		}
		copy(h[:], raw)
		return h, nil
	default:
		return h, fmt.Errorf("--hash or --file required")
	}
}

func claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <task-id>",
		Short: "Pay the task's escrow to the signer and complete the task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				res, err := e.ClaimReward(ctx, engine.ClaimRewardOptions{
					Task:  engine.TaskRef{Graph: g.Address, TaskID: id},
					Agent: signer,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Claimed %d lamports for task %d\n", res.Lamports, id)
				return nil
			})
		},
	}
}

func disputeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dispute", Short: "Raise, settle and inspect disputes"}

	var reason string
	raiseCmd := &cobra.Command{
		Use:   "raise <task-id>",
		Short: "Freeze a task's claim path pending arbitration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				d, err := e.DisputeTask(ctx, engine.DisputeTaskOptions{
					Task:      engine.TaskRef{Graph: g.Address, TaskID: id},
					Initiator: signer,
					Reason:    reason,
				})
				if err != nil {
					return err
				}
				return printDispute(d)
			})
		},
	}
	raiseCmd.Flags().StringVar(&reason, "reason", "", "why the work is contested")
	_ = raiseCmd.MarkFlagRequired("reason")

	var creatorPct, workerPct uint8
	var initiator, creator, worker string
	resolveCmd := &cobra.Command{
		Use:   "resolve <task-id>",
		Short: "Split the escrow between creator and worker as the graph authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				ref := engine.TaskRef{Graph: g.Address, TaskID: id}
				opts := engine.ResolveDisputeOptions{
					Task:       ref,
					Arbiter:    signer,
					Initiator:  initiator,
					Creator:    creator,
					Worker:     worker,
					CreatorPct: creatorPct,
					WorkerPct:  workerPct,
				}
				// Payees default to the ones recorded on the dispute.
				if creator == "" || !cmd.Flags().Changed("worker") {
					current, err := e.GetDispute(ctx, ref)
					if err != nil {
						return err
					}
					if creator == "" {
						opts.Creator = current.Creator
					}
					if !cmd.Flags().Changed("worker") {
						opts.Worker = current.Worker
					}
				}
				d, err := e.ResolveDispute(ctx, opts)
				if err != nil {
					return err
				}
				return printDispute(d)
			})
		},
	}
	resolveCmd.Flags().Uint8Var(&creatorPct, "creator-pct", 0, "creator's share in percent")
	resolveCmd.Flags().Uint8Var(&workerPct, "worker-pct", 0, "worker's share in percent")
	resolveCmd.Flags().StringVar(&initiator, "initiator", "", "account that raised the dispute")
	resolveCmd.Flags().StringVar(&creator, "creator", "", "creator payee (defaults to the recorded creator)")
	resolveCmd.Flags().StringVar(&worker, "worker", "", "worker payee (defaults to the recorded worker)")

	expireCmd := &cobra.Command{
		Use:   "expire <task-id>",
		Short: "Settle a timed-out dispute with the fallback split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := requireSigner()
			if err != nil {
				return err
			}
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				d, err := e.ExpireDispute(ctx, engine.ExpireDisputeOptions{
					Task:      engine.TaskRef{Graph: g.Address, TaskID: id},
					Initiator: initiator,
					Caller:    signer,
				})
				if err != nil {
					return err
				}
				return printDispute(d)
			})
		},
	}
	expireCmd.Flags().StringVar(&initiator, "initiator", "", "account that raised the dispute")

	showCmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the dispute recorded for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withGraph(cmd.Context(), func(ctx context.Context, e engine.Engine, g domain.Graph) error {
				d, err := e.GetDispute(ctx, engine.TaskRef{Graph: g.Address, TaskID: id})
				if err != nil {
					return err
				}
				return printDispute(d)
			})
		},
	}

	cmd.AddCommand(raiseCmd, resolveCmd, expireCmd, showCmd)
	return cmd
}

func printDispute(d domain.Dispute) error {
	if viper.GetBool("json") {
		return printJSON(d)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"Dispute", d.Address},
		{"Status", d.Status},
		{"Raised by", d.RaisedBy},
		{"Reason", d.Reason},
		{"Creator", d.Creator},
		{"Worker", d.Worker},
		{"Raised slot", d.RaisedSlot},
		{"Resolved slot", deref(d.ResolvedSlot)},
		{"Creator amount", deref(d.CreatorAmount)},
		{"Worker amount", deref(d.WorkerAmount)},
		{"Expired", d.Expired},
	})
	tw.Render()
	return nil
}

func depositCmd() *cobra.Command {
	var amount uint64
	var account string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Credit lamports to an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				signer, err := requireSigner()
				if err != nil {
					return err
				}
				account = signer
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Deposit(ctx, account, amount)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("%s holds %d lamports\n", a.Address, a.Lamports)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "lamports to credit")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&account, "account", "", "account to credit (defaults to the signer)")
	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [account]",
		Short: "Show an account balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := viper.GetString("signer")
			if len(args) == 1 {
				address = args[0]
			}
			if strings.TrimSpace(address) == "" {
				return fmt.Errorf("account argument or --signer required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Account(ctx, address)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("%s: %d lamports (%s)\n", a.Address, a.Lamports, a.Owner)
				return nil
			})
		},
	}
}
