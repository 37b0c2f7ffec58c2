package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display configuration",
	Long: `Display the effective weft configuration.

Configuration is stored at ~/.config/weft/config.yaml
Project-specific overrides can be placed in .weft.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

// displayConfig prints all configuration values.
func displayConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("runtime.max_parallelism: %d\n", cfg.Runtime.MaxParallelism)
	fmt.Printf("runtime.debug_log: %s\n", cfg.Runtime.DebugLog)
	fmt.Printf("state.db_path: %s\n", cfg.State.DBPath)
	fmt.Printf("timeouts.pure: %s\n", cfg.Timeouts.Pure)
	fmt.Printf("timeouts.idempotent: %s\n", cfg.Timeouts.Idempotent)
	fmt.Printf("timeouts.effectful: %s\n", cfg.Timeouts.Effectful)

	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("\nproject overrides: %s\n", project)
	}
}
