package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/config"
	"github.com/sells-group/lotwatch/internal/report"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lotwatch",
	Short: "Procurement lot monitor for goszakup.gov.kz",
	Long:  "Fetches procurement lots from goszakup.gov.kz, polls for new ones, and scores them with a prediction service to flag suspicious purchases.",
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

// openOutput returns where a command writes its report: path when set,
// stdout otherwise. Binary formats need a path.
func openOutput(cmd *cobra.Command, path string, f report.Format) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		if f.Binary() {
			return nil, nil, fmt.Errorf("--out is required for %s output", f)
		}
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return file, file.Close, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
