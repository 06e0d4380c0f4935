package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/config"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
)

// exitNothingToDo is the exit code when no input files were found.
const exitNothingToDo = 2

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vcard-normalize",
	Short: "Clean, merge, and export address books",
	Long:  "Reads vCard exports from several sources, normalises and de-duplicates the contacts, and writes one clean address book.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if cfg.LoadErr != nil {
			zap.L().Warn("config file unreadable, using defaults", zap.Error(cfg.LoadErr))
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, pipeline.ErrNoInput) {
		return exitNothingToDo
	}
	return 1
}
