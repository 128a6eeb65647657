package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityfood/discovery-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "discovery-engine",
	Short: "Just-in-time discovery of community food resources",
	Long:  "Searches the web for food banks, pantries and meal programs in a city, extracts and geocodes them with an LLM, and stores deduplicated, scored results behind a 30-day per-area cooldown.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
