package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lotwatch/internal/model"
)

// columnKeys maps header cells, either the JSON field names or the labels
// WriteRecords emits, to record fields.
var columnKeys = map[string]string{
	"lot_id":        "lot_id",
	"lot id":        "lot_id",
	"announcement":  "announcement",
	"customer":      "customer",
	"subject":       "subject",
	"subject_link":  "subject_link",
	"subject link":  "subject_link",
	"quantity":      "quantity",
	"amount":        "amount",
	"purchase_type": "purchase_type",
	"purchase type": "purchase_type",
	"status":        "status",
}

// ReadRecords loads records from a .json, .csv or .xlsx file. JSON files
// hold an array of records whose quantity and amount may be numbers or
// strings; tabular files need a header row naming the columns.
func ReadRecords(path string) ([]model.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "report: read %s", path)
		}
		return DecodeRecordsJSON(b)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "report: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return readCSV(f)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("report: unsupported file type %q", filepath.Ext(path))
	}
}

// DecodeRecordsJSON decodes a JSON array of records.
func DecodeRecordsJSON(b []byte) ([]model.Record, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(b), &raw); err != nil {
		return nil, eris.Wrap(err, "report: expected a JSON array of records")
	}
	recs := make([]model.Record, 0, len(raw))
	for i, obj := range raw {
		fields := make(map[string]string, len(obj))
		for k, v := range obj {
			s, err := scalar(v)
			if err != nil {
				return nil, eris.Wrapf(err, "report: record %d field %q", i, k)
			}
			fields[k] = s
		}
		recs = append(recs, fromFields(fields))
	}
	return recs, nil
}

// scalar renders a JSON string, number, bool or null as text.
func scalar(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return model.FormatNumber(f), nil
	}
	var b *bool
	if err := json.Unmarshal(v, &b); err == nil {
		if b == nil {
			return "", nil
		}
		return strconv.FormatBool(*b), nil
	}
	return "", eris.New("not a scalar value")
}

func fromFields(f map[string]string) model.Record {
	return model.Record{
		LotID:        f["lot_id"],
		Announcement: f["announcement"],
		Customer:     f["customer"],
		Subject:      f["subject"],
		SubjectLink:  f["subject_link"],
		Quantity:     f["quantity"],
		Amount:       f["amount"],
		PurchaseType: f["purchase_type"],
		Status:       f["status"],
	}
}

func readCSV(r io.Reader) ([]model.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "report: read csv")
	}
	return fromTable(rows)
}

func readXLSX(path string) ([]model.Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("report: xlsx has no sheets")
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromTable(rows)
}

func fromTable(rows [][]string) ([]model.Record, error) {
	if len(rows) == 0 {
		return []model.Record{}, nil
	}
	cols := make(map[int]string, len(rows[0]))
	for i, h := range rows[0] {
		if key, ok := columnKeys[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[i] = key
		}
	}
	if !containsValue(cols, "lot_id") {
		return nil, eris.New("report: header has no lot_id column")
	}

	recs := make([]model.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		fields := make(map[string]string, len(cols))
		empty := true
		for i, cell := range row {
			key, ok := cols[i]
			if !ok {
				continue
			}
			cell = strings.TrimSpace(cell)
			fields[key] = cell
			if cell != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		recs = append(recs, fromFields(fields))
	}
	return recs, nil
}

func containsValue(m map[int]string, v string) bool {
	for _, x := range m {
		if x == v {
			return true
		}
	}
	return false
}
