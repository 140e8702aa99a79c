package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/agent"
	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/report"
)

var (
	agentInterval time.Duration
	agentAnalyze  bool
	agentFormat   string
	agentOut      string
)

var agentCmd = &cobra.Command{
	Use:   "agent [url]",
	Short: "Poll a search page for new lots until interrupted",
	Long:  "Loads the page once, then re-fetches it on an interval and appends lots not seen before. New lots are scored automatically unless --analyze=false. On exit the collected records are written out.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("analyze") {
			cfg.Agent.AutoAnalyze = agentAnalyze
		}
		if err := cfg.Validate("agent"); err != nil {
			return err
		}
		format, err := report.ParseFormat(agentFormat)
		if err != nil {
			return err
		}

		target := cfg.Source.DefaultURL
		if len(args) == 1 {
			target = args[0]
		}
		interval := agentInterval
		if interval <= 0 {
			interval = cfg.Agent.Interval()
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Agent.Start(ctx, target, interval); err != nil {
			if errors.Is(err, agent.ErrInvalidURL) {
				return err
			}
			zap.L().Warn("initial fetch failed, polling continues", zap.Error(err))
			_ = explainFetchError(cmd.ErrOrStderr(), err)
		}

		<-ctx.Done()
		env.Agent.Close()

		printAgentStats(cmd.ErrOrStderr(), env.Agent.Stats())

		w, closeOut, err := openOutput(cmd, agentOut, format)
		if err != nil {
			return err
		}
		if err := report.WriteRecords(w, format, env.Records.Snapshot()); err != nil {
			_ = closeOut()
			return err
		}
		return closeOut()
	},
}

func printAgentStats(w io.Writer, s model.AgentStats) {
	last := "never"
	if !s.LastFetch.IsZero() {
		last = humanize.Time(s.LastFetch)
	}
	fmt.Fprintf(w, "fetches: %s (%s successful), new records: %s, total records: %s, last fetch: %s\n", //nolint:errcheck
		humanize.Comma(int64(s.TotalFetches)),
		humanize.Comma(int64(s.SuccessfulFetches)),
		humanize.Comma(int64(s.NewRecords)),
		humanize.Comma(int64(s.TotalRecords)),
		last,
	)
}

func init() {
	agentCmd.Flags().DurationVar(&agentInterval, "interval", 0, "polling interval (default from config, minimum 30s)")
	agentCmd.Flags().BoolVar(&agentAnalyze, "analyze", true, "score new lots with the prediction service")
	agentCmd.Flags().StringVar(&agentFormat, "format", string(report.FormatTable), "output format: table, csv, json, yaml, xlsx")
	agentCmd.Flags().StringVarP(&agentOut, "out", "o", "", "write records to a file instead of stdout")
	rootCmd.AddCommand(agentCmd)
}
