package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/predict"
)

func sampleResults() []model.SuspicionResult {
	return []model.SuspicionResult{
		{
			AnalysisRecord: model.AnalysisRecord{
				LotID:       "1-ЗЦП1",
				Subject:     "Бумага офисная",
				Customer:    "ТОО Пример",
				SubjectLink: "https://goszakup.gov.kz/ru/announce/index/1",
				Quantity:    10,
				Amount:      150000,
			},
			SuspicionPercentage: 81.3,
			SuspicionLevel:      model.LevelHigh,
		},
		{
			AnalysisRecord:      model.AnalysisRecord{LotID: "2-ЗЦП1", Subject: "Ручки", Amount: 75500.25},
			SuspicionPercentage: 12,
			SuspicionLevel:      model.LevelLow,
		},
	}
}

func sampleRecords() []model.Record {
	return []model.Record{
		{LotID: "1-ЗЦП1", Announcement: "Объявление", Customer: "ТОО Пример", Subject: "Бумага", Quantity: "10", Amount: "150000.00", PurchaseType: "Запрос ценовых предложений", Status: "Опубликован"},
		{LotID: "2-ЗЦП1", Subject: "Ручки, синие", Amount: "75500.25"},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":      FormatTable,
		"table": FormatTable,
		"CSV":   FormatCSV,
		"json":  FormatJSON,
		"yml":   FormatYAML,
		"yaml":  FormatYAML,
		"xlsx":  FormatXLSX,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("pdf")
	assert.Error(t, err)
	assert.True(t, FormatXLSX.Binary())
	assert.False(t, FormatCSV.Binary())
}

func TestWriteResults_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatTable, sampleResults()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Lot ID"))
	assert.Contains(t, lines[1], "81.3%")
	assert.Contains(t, lines[1], "Высокий")
	assert.Contains(t, lines[2], "Низкий")
}

func TestWriteResults_TableTruncatesLongCells(t *testing.T) {
	results := sampleResults()[:1]
	results[0].Subject = strings.Repeat("очень длинный предмет ", 10)

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatTable, results))
	assert.Contains(t, buf.String(), "…")
}

func TestWriteResults_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatCSV, sampleResults()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, resultHeader, rows[0])
	assert.Equal(t, "1-ЗЦП1", rows[1][0])
	assert.Equal(t, "10", rows[1][3])
	assert.Equal(t, "12.0%", rows[2][5])
}

func TestWriteResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatJSON, sampleResults()))

	var got []model.SuspicionResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, model.LevelHigh, got[0].SuspicionLevel)
	assert.InDelta(t, 75500.25, got[1].Amount, 1e-9)
	assert.Contains(t, buf.String(), "ЗЦП", "non-ASCII text is not escaped")
}

func TestWriteResults_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteRecords_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, FormatYAML, sampleRecords()))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "1-ЗЦП1", got[0]["lot_id"])
}

func TestWriteRecords_XLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, FormatXLSX, sampleRecords()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Equal(t, "Records", f.Sheets[0].Name)
	require.Len(t, f.Sheets[0].Rows, 3)
	assert.Equal(t, "Lot ID", f.Sheets[0].Rows[0].Cells[0].String())

	path := filepath.Join(t.TempDir(), "records.xlsx")
	require.NoError(t, f.Save(path))

	recs, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), recs)
}

func TestWriteRecords_UnknownFormat(t *testing.T) {
	err := WriteRecords(&bytes.Buffer{}, Format("pdf"), sampleRecords())
	assert.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, predict.Summary(sampleResults())))

	out := buf.String()
	assert.Contains(t, out, "Total: 2")
	assert.Contains(t, out, "Высокий: 1")
	assert.Contains(t, out, "Средний: 0")
	assert.Contains(t, out, "max 81.3%")
}
