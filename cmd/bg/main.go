package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bountygraph/internal/app"
	"bountygraph/internal/domain"
	"bountygraph/internal/engine"
	"bountygraph/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "bg",
	Short: "BountyGraph CLI",
	Long: `BountyGraph is a ledger for dependency-ordered bounties.

- Graph: one per authority; holds tasks and settles their disputes.
- Task: a reward with dependencies on earlier tasks of the same graph.
- Escrow: the task's vault; funded by anyone, drained exactly once.
- Receipt: an agent's proof of work; the first one satisfies the task as a dependency.
- Claim: a receipt holder takes the whole escrow and completes the task.
- Dispute: freezes the claim path until the graph authority splits the escrow.

Every write runs as --signer (or BOUNTYGRAPH_SIGNER).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if le, ok := engine.AsError(err); ok {
			fmt.Fprintf(os.Stderr, "error [%s]: %v\n", le.Code, err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOUNTYGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.StringP("signer", "s", "", "identity signing write operations")
	flags.String("graph", "", "graph address (defaults to the signer's graph)")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	for _, name := range []string{"workspace", "json", "signer", "graph", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(disputeCmd())
	rootCmd.AddCommand(depositCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(dagCmd())
	rootCmd.AddCommand(reputationCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(viper.GetString("log-format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace, default config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			wrote, err := app.InitWorkspace(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				version, err := migrate.Version(ctx, e.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"workspace": workspace, "config_written": wrote, "schema_version": version})
				}
				if wrote {
					fmt.Printf("Initialized workspace in %s (schema v%d)\n", workspace, version)
				} else {
					fmt.Printf("Workspace %s already initialized (schema v%d)\n", workspace, version)
				}
				return nil
			})
		},
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Logger:    newLogger(os.Stderr),
	})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	return fn(ctx, rt.Engine)
}

// withGraph resolves the graph the command targets before running fn.
func withGraph(ctx context.Context, fn func(context.Context, engine.Engine, domain.Graph) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		g, err := app.ResolveGraph(ctx, e, viper.GetString("graph"), viper.GetString("signer"))
		if err != nil {
			return err
		}
		return fn(ctx, e, g)
	})
}

func requireSigner() (string, error) {
	s := strings.TrimSpace(viper.GetString("signer"))
	if s == "" {
		return "", fmt.Errorf("--signer (or BOUNTYGRAPH_SIGNER) required")
	}
	return s, nil
}

func parseTaskID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func parseTaskIDs(list string) ([]uint64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var ids []uint64
	for _, part := range strings.Split(list, ",") {
		id, err := parseTaskID(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref[T any](p *T) any {
	if p == nil {
		return ""
	}
	return *p
}
