// Package report renders records and analysis results as tables and files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/predict"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatXLSX  Format = "xlsx"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatTable, FormatCSV, FormatJSON, FormatYAML, FormatXLSX}
}

// ParseFormat returns the format named s. Empty means table.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatTable, nil
	}
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "yml" {
		return FormatYAML, nil
	}
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", eris.Errorf("report: unknown format %q", s)
}

// Binary reports whether f should not be written to a terminal.
func (f Format) Binary() bool { return f == FormatXLSX }

// cellWidth bounds each column of text tables.
const cellWidth = 60

var recordHeader = []string{"Lot ID", "Announcement", "Customer", "Subject", "Subject link", "Quantity", "Amount", "Purchase type", "Status"}

func recordRow(r model.Record) []string {
	return []string{r.LotID, r.Announcement, r.Customer, r.Subject, r.SubjectLink, r.Quantity, r.Amount, r.PurchaseType, r.Status}
}

var resultHeader = []string{"Lot ID", "Subject", "Customer", "Quantity", "Amount", "Probability", "Level", "Subject link"}

func resultRow(r model.SuspicionResult) []string {
	return []string{
		r.LotID,
		r.Subject,
		r.Customer,
		model.FormatNumber(r.Quantity),
		predict.FormatAmount(r.Amount),
		predict.FormatProbability(r.SuspicionPercentage),
		r.SuspicionLevel.Russian(),
		r.SubjectLink,
	}
}

// WriteRecords writes recs to w in format f.
func WriteRecords(w io.Writer, f Format, recs []model.Record) error {
	if recs == nil {
		recs = []model.Record{}
	}
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = recordRow(r)
	}
	return write(w, f, recs, recordHeader, rows, "Records")
}

// WriteResults writes results to w in format f.
func WriteResults(w io.Writer, f Format, results []model.SuspicionResult) error {
	if results == nil {
		results = []model.SuspicionResult{}
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = resultRow(r)
	}
	return write(w, f, results, resultHeader, rows, "Results")
}

// WriteSummary prints per-level counts under a results table.
func WriteSummary(w io.Writer, s predict.Stats) error {
	parts := make([]string, 0, len(s.ByLevel))
	for _, lc := range s.ByLevel {
		parts = append(parts, fmt.Sprintf("%s: %d", lc.Level.Russian(), lc.Count))
	}
	_, err := fmt.Fprintf(w, "Total: %d (%s), average %s, max %s\n",
		s.Total, strings.Join(parts, ", "),
		predict.FormatProbability(s.AvgPercentage), predict.FormatProbability(s.MaxPercentage))
	return eris.Wrap(err, "report: write summary")
}

func write(w io.Writer, f Format, v any, header []string, rows [][]string, sheet string) error {
	switch f {
	case FormatTable, "":
		return writeTable(w, header, rows)
	case FormatCSV:
		return writeCSV(w, header, rows)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return eris.Wrap(enc.Encode(v), "report: encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return eris.Wrap(enc.Close(), "report: close yaml encoder")
	case FormatXLSX:
		return writeXLSX(w, sheet, header, rows)
	default:
		return eris.Errorf("report: unknown format %q", f)
	}
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t")) //nolint:errcheck
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			c = strings.Join(strings.Fields(c), " ")
			cells[i] = runewidth.Truncate(c, cellWidth, "…")
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")) //nolint:errcheck
	}
	return eris.Wrap(tw.Flush(), "report: flush table")
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "report: write csv")
	}
	return nil
}

func writeXLSX(w io.Writer, sheetName string, header []string, rows [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	addRow(sheet, header)
	for _, row := range rows {
		addRow(sheet, row)
	}
	return eris.Wrap(f.Write(w), "report: write xlsx")
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
