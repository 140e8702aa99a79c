package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/predict"
	"github.com/sells-group/lotwatch/internal/report"
	"github.com/sells-group/lotwatch/internal/store"
)

var (
	analyzeSelected bool
	analyzeLevel    string
	analyzeSort     string
	analyzeFormat   string
	analyzeOut      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Score lots with the prediction service",
	Long:  "Sends records from a .json, .csv or .xlsx file (or the lots handed off with 'select handoff' when --selected is set) to the prediction service and prints the scored results.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		if analyzeSelected == (len(args) == 1) {
			return fmt.Errorf("pass either a file or --selected")
		}
		format, err := report.ParseFormat(analyzeFormat)
		if err != nil {
			return err
		}
		filter, err := predict.ParseLevelFilter(analyzeLevel)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		switch {
		case analyzeSelected:
			selected, err := env.Selection.TakeForAnalysis(ctx)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				return store.ErrNothingSelected
			}
			if err := env.Submitter.AnalyzeSelected(ctx, selected); err != nil {
				return err
			}
		case strings.EqualFold(filepath.Ext(args[0]), ".json"):
			resp, err := env.Predict.AnalyzeFile(ctx, args[0])
			if err != nil {
				return err
			}
			env.Results.Set(resp.Predictions, resp.ExecutionTime)
		default:
			recs, err := report.ReadRecords(args[0])
			if err != nil {
				return err
			}
			if err := env.Submitter.Analyze(ctx, recs); err != nil {
				return err
			}
		}

		results, execTime := env.Results.Get()
		shown := predict.FilterAndSort(results, filter, predict.ParseSortType(analyzeSort))

		w, closeOut, err := openOutput(cmd, analyzeOut, format)
		if err != nil {
			return err
		}
		if err := report.WriteResults(w, format, shown); err != nil {
			_ = closeOut()
			return err
		}
		if err := closeOut(); err != nil {
			return err
		}

		if err := report.WriteSummary(cmd.ErrOrStderr(), predict.Summary(results)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "execution time: %.2fs\n", execTime) //nolint:errcheck
		return nil
	},
}

var selectFrom string

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Manage the lots selected for another analysis run",
}

var selectListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the selected lots",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := store.OpenSelection(cmd.Context(), cfg.Selection.DSN)
		if err != nil {
			return err
		}
		defer sel.Close() //nolint:errcheck

		_, data, err := sel.Selected(cmd.Context())
		if err != nil {
			return err
		}
		return report.WriteResults(cmd.OutOrStdout(), report.FormatTable, data)
	},
}

var selectToggleCmd = &cobra.Command{
	Use:   "toggle <lot-id>",
	Short: "Select or deselect a lot from a results file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var candidates []model.SuspicionResult
		if selectFrom != "" {
			raw, err := os.ReadFile(selectFrom)
			if err != nil {
				return fmt.Errorf("read results: %w", err)
			}
			if err := json.Unmarshal(raw, &candidates); err != nil {
				return fmt.Errorf("decode results: %w", err)
			}
		}

		sel, err := store.OpenSelection(cmd.Context(), cfg.Selection.DSN)
		if err != nil {
			return err
		}
		defer sel.Close() //nolint:errcheck

		on, err := sel.Toggle(cmd.Context(), args[0], candidates)
		if err != nil {
			return err
		}
		state := "deselected"
		if on {
			state = "selected"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state) //nolint:errcheck
		return nil
	},
}

var selectHandoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Queue the selected lots for 'analyze --selected'",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := store.OpenSelection(cmd.Context(), cfg.Selection.DSN)
		if err != nil {
			return err
		}
		defer sel.Close() //nolint:errcheck

		handed, err := sel.HandOff(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d lots queued for analysis\n", len(handed)) //nolint:errcheck
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeSelected, "selected", false, "analyze the lots queued with 'select handoff'")
	analyzeCmd.Flags().StringVar(&analyzeLevel, "level", "all", "show only one level: all, High, Medium, Low")
	analyzeCmd.Flags().StringVar(&analyzeSort, "sort", string(predict.SortProbabilityDesc), "sort: probability_desc, probability_asc, level")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", string(report.FormatTable), "output format: table, csv, json, yaml, xlsx")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write output to a file instead of stdout")
	rootCmd.AddCommand(analyzeCmd)

	selectToggleCmd.Flags().StringVar(&selectFrom, "from", "", "results JSON file (output of 'analyze --format json')")
	selectCmd.AddCommand(selectListCmd, selectToggleCmd, selectHandoffCmd)
	rootCmd.AddCommand(selectCmd)
}
