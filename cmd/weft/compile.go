package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/machine"
	"github.com/weftlabs/weft/internal/partition"
	"github.com/weftlabs/weft/internal/plan"
	"github.com/weftlabs/weft/internal/state"
	"github.com/weftlabs/weft/pkg/models"
)

var (
	compileOutput string
	compileVerify bool
	compileWatch  bool
	compileSave   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <plan.yaml>",
	Short: "Compile a plan into a state machine",
	Long: `Compile a plan file into its state machine and emit it as JSON.

The plan's dependency graph is partitioned into serial chains and
parallel batch regions, then compiled into an ordered state list with
CONTINUE/ERROR transitions. A plan may carry an explicit partition; when
it does, that partition is used as-is after a coverage check.

Examples:
  weft compile plan.yaml                 # machine JSON on stdout
  weft compile plan.yaml -o machine.json # write to a file
  weft compile plan.yaml --verify        # run the structural checker
  weft compile plan.yaml --watch         # recompile on plan changes
  weft compile plan.yaml --save          # store a snapshot in the state db`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "Write the machine JSON to a file instead of stdout")
	compileCmd.Flags().BoolVar(&compileVerify, "verify", false, "Run the structural verifier on the compiled machine")
	compileCmd.Flags().BoolVar(&compileWatch, "watch", false, "Watch the plan file and recompile on change")
	compileCmd.Flags().BoolVar(&compileSave, "save", false, "Store the compiled machine as a snapshot in the state database")
}

func runCompile(cmd *cobra.Command, args []string) error {
	planPath := args[0]

	if err := compileOnce(planPath); err != nil {
		if !compileWatch {
			return err
		}
		// In watch mode a broken plan is reported, not fatal.
		color.Red("compile failed: %v", err)
	}

	if compileWatch {
		return watchAndCompile(planPath)
	}
	return nil
}

// compileOnce runs the full plan-to-machine pipeline for one plan file.
func compileOnce(planPath string) error {
	p, err := plan.Load(planPath)
	if err != nil {
		return err
	}

	_, states, err := compilePlan(p)
	if err != nil {
		return err
	}

	if compileVerify {
		if err := machine.Verify(states); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		color.Green("machine verified: %d states", len(states))
	}

	machineJSON, hash, err := state.EncodeMachine(states)
	if err != nil {
		return err
	}

	if compileSave {
		if err := saveSnapshot(p, states); err != nil {
			return err
		}
		color.Green("snapshot saved: %s", hash[:12])
	}

	if compileOutput != "" {
		if err := os.WriteFile(compileOutput, []byte(machineJSON+"\n"), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", compileOutput, err)
		}
		fmt.Printf("wrote %d states to %s\n", len(states), compileOutput)
		return nil
	}

	fmt.Println(machineJSON)
	return nil
}

// compilePlan takes a parsed plan through graph construction, partitioning,
// and compilation. The graph is returned so callers that interpret the
// machine do not rebuild it.
func compilePlan(p *plan.Plan) (*models.Graph, []models.State, error) {
	g, err := p.Graph()
	if err != nil {
		return nil, nil, err
	}

	part := p.PartitionResult()
	if part == nil {
		part, err = partition.Plan(g)
		if err != nil {
			return nil, nil, err
		}
	} else if err := machine.VerifyCoverage(g, part); err != nil {
		return nil, nil, err
	}

	states, err := machine.Compile(g, part)
	if err != nil {
		return nil, nil, err
	}
	return g, states, nil
}

// saveSnapshot stores the compiled machine in the project state database.
func saveSnapshot(p *plan.Plan, states []models.State) error {
	db, err := openStateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	name := p.Name
	if name == "" {
		name = "unnamed"
	}
	_, err = db.SaveSnapshot(name, states)
	return err
}

// watchAndCompile recompiles whenever the plan file changes. Editors often
// replace the file on save, so the watch is on the parent directory.
func watchAndCompile(planPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(planPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	abs, err := filepath.Abs(planPath)
	if err != nil {
		return err
	}
	color.Cyan("watching %s", planPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed, _ := filepath.Abs(event.Name)
			if changed != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := compileOnce(planPath); err != nil {
				color.Red("compile failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			color.Red("watch error: %v", err)
		}
	}
}
