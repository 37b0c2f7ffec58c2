package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/agent"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/plan"
	"github.com/weftlabs/weft/internal/runtime"
	"github.com/weftlabs/weft/internal/state"
)

var (
	runDryRun  bool
	runVerbose bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Compile a plan and execute it",
	Long: `Compile a plan into its state machine and interpret it.

Tasks are resolved through the configured Anthropic model. Parallel
batches run concurrently; serial chains run in order; the first task
failure routes the run to the failure state.

Examples:
  weft run plan.yaml            # execute with the configured agent
  weft run plan.yaml --dry-run  # walk the machine with an echo executor
  weft run plan.yaml -v         # print runtime events as they happen`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Walk the machine without calling the model")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print runtime events")
}

func runRun(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	g, states, err := compilePlan(p)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	exec, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	var opts []runtime.Option
	if cfg.Runtime.DebugLog != "" {
		logger, err := runtime.NewDebugLogger(cfg.Runtime.DebugLog)
		if err != nil {
			return err
		}
		defer logger.Close()
		opts = append(opts, runtime.WithLogger(logger))
	}

	eng, err := runtime.New(g, states, exec, opts...)
	if err != nil {
		return err
	}

	db, err := openStateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	name := p.Name
	if name == "" {
		name = "unnamed"
	}
	snap, err := db.SaveSnapshot(name, states)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := eng.Events()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if runVerbose {
				printEvent(ev)
			}
		}
	}()

	result, err := eng.Run(ctx)
	<-done
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}

	if err := recordRun(db, snap.Hash, result); err != nil {
		return err
	}

	if result.Succeeded() {
		color.Green("run %s reached %s", result.RunID, result.Terminal)
	} else {
		color.Red("run %s reached %s", result.RunID, result.Terminal)
	}
	for id, out := range result.Results {
		fmt.Printf("\n== %s ==\n%s\n", id, out)
	}
	if !result.Succeeded() {
		// Returned rather than exiting so deferred closes still run.
		return fmt.Errorf("run %s failed", result.RunID)
	}
	return nil
}

// recordRun persists the outcome of a finished run.
func recordRun(db *state.DB, snapshotHash string, result *runtime.RunResult) error {
	if _, err := db.CreateRun(result.RunID, snapshotHash); err != nil {
		return err
	}
	status := state.RunSucceeded
	if !result.Succeeded() {
		status = state.RunFailed
	}
	return db.FinishRun(result.RunID, status, result.Terminal)
}

// buildExecutor returns the echo executor for dry runs, otherwise an
// API-backed executor from the loaded configuration.
func buildExecutor(cfg *config.Config) (runtime.Executor, error) {
	if runDryRun {
		return runtime.EchoExecutor(), nil
	}

	clientCfg := agent.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		if err := config.ValidateAPIKey(key); err != nil {
			return nil, err
		}
		clientCfg.APIKey = key
	}
	client, err := agent.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}
	return agent.NewExecutor(client, cfg.Timeouts.ForSideEffect, cfg.Runtime.MaxParallelism), nil
}

// openStateDB opens the project state database, honoring a configured
// override path.
func openStateDB() (*state.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	path := cfg.State.DBPath
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path = state.ProjectDBPath(cwd)
	}
	db, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// printEvent renders one runtime event for verbose output.
func printEvent(ev runtime.Event) {
	switch ev.Type {
	case runtime.EventTaskFailed:
		color.Red("%s %s: %v", ev.Type, ev.NodeID, ev.Err)
	case runtime.EventFanOut:
		color.Cyan("%s %s: %d branches", ev.Type, ev.StateID, ev.Branches)
	case runtime.EventJoinReached:
		color.Cyan("%s %s", ev.Type, ev.StateID)
	case runtime.EventStateEntered:
		fmt.Printf("%s %s\n", ev.Type, ev.StateID)
	default:
		id := ev.NodeID
		if id == "" {
			id = ev.StateID
		}
		fmt.Printf("%s %s\n", ev.Type, id)
	}
}
