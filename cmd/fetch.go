package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/extract"
	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/report"
	"github.com/sells-group/lotwatch/internal/scrape"
)

const (
	modeRows   = "rows"
	modeSingle = "single"
)

var (
	fetchMode   string
	fetchFormat string
	fetchOut    string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch a page and print the lots found on it",
	Long:  "Fetches a search results page (--mode rows) or a lot detail page (--mode single) through the proxy/direct strategy chain and prints the extracted records.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		format, err := report.ParseFormat(fetchFormat)
		if err != nil {
			return err
		}

		target := cfg.Source.DefaultURL
		if len(args) == 1 {
			target = args[0]
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		var recs []model.Record
		switch fetchMode {
		case modeRows:
			out, err := env.Agent.FetchOnce(ctx, target, false)
			if err != nil {
				return explainFetchError(cmd.ErrOrStderr(), err)
			}
			zap.L().Info("fetch complete", zap.String("url", target), zap.Int("records", out.Added))
			recs = env.Records.Snapshot()
		case modeSingle:
			if err := env.Agent.ValidateURL(target); err != nil {
				return err
			}
			html, err := env.Chain.FetchHTML(ctx, target)
			if err != nil {
				return explainFetchError(cmd.ErrOrStderr(), err)
			}
			recs = env.Extractor.Single(html, target)
		default:
			return fmt.Errorf("unknown --mode %q (want %s or %s)", fetchMode, modeRows, modeSingle)
		}

		w, closeOut, err := openOutput(cmd, fetchOut, format)
		if err != nil {
			return err
		}
		if err := report.WriteRecords(w, format, recs); err != nil {
			_ = closeOut()
			return err
		}
		return closeOut()
	},
}

// explainFetchError prints the chain's guidance before returning err.
func explainFetchError(w io.Writer, err error) error {
	var fe *scrape.FetchError
	if errors.As(err, &fe) {
		fmt.Fprintln(w, fe.Guidance()) //nolint:errcheck
	}
	return err
}

var (
	extractMode   string
	extractSource string
	extractFormat string
	extractOut    string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file.html|->",
	Short: "Extract lots from a saved HTML page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(extractFormat)
		if err != nil {
			return err
		}

		var raw []byte
		if args[0] == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read html: %w", err)
		}

		recs, err := extractRecords(string(raw), extractMode, extractSource)
		if err != nil {
			return err
		}

		w, closeOut, err := openOutput(cmd, extractOut, format)
		if err != nil {
			return err
		}
		if err := report.WriteRecords(w, format, recs); err != nil {
			_ = closeOut()
			return err
		}
		return closeOut()
	},
}

func extractRecords(html, mode, source string) ([]model.Record, error) {
	ex := newExtractor()
	switch mode {
	case modeRows:
		return ex.Rows(html), nil
	case modeSingle, "":
		return ex.Single(html, source), nil
	default:
		return nil, fmt.Errorf("unknown mode %q (want %s or %s)", mode, modeRows, modeSingle)
	}
}

func newExtractor() *extract.Extractor {
	if cfg == nil {
		return extract.New()
	}
	return extract.New(extract.WithOrigin(cfg.Source.Origin))
}

func init() {
	fetchCmd.Flags().StringVar(&fetchMode, "mode", modeRows, "page type: rows (search results) or single (lot detail)")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", string(report.FormatTable), "output format: table, csv, json, yaml, xlsx")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "write output to a file instead of stdout")
	rootCmd.AddCommand(fetchCmd)

	extractCmd.Flags().StringVar(&extractMode, "mode", modeSingle, "page type: rows (search results) or single (lot detail)")
	extractCmd.Flags().StringVar(&extractSource, "source", "", "URL the page was saved from")
	extractCmd.Flags().StringVar(&extractFormat, "format", string(report.FormatTable), "output format: table, csv, json, yaml, xlsx")
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "write output to a file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}
