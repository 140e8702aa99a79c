package predict

import (
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lotwatch/internal/model"
)

func scored(id string, pct float64, level model.Level, amount float64) model.SuspicionResult {
	return model.SuspicionResult{
		AnalysisRecord:      model.AnalysisRecord{LotID: id, Amount: amount},
		SuspicionPercentage: pct,
		SuspicionLevel:      level,
	}
}

func ids(results []model.SuspicionResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.LotID
	}
	return out
}

func fixture() []model.SuspicionResult {
	return []model.SuspicionResult{
		scored("a", 40, model.LevelMedium, 100),
		scored("b", 90, model.LevelHigh, 2000),
		scored("c", 10, model.LevelLow, 5),
		scored("d", 60, model.LevelMedium, 50),
		scored("e", 80, model.LevelHigh, 1000),
		// Level and percentage disagree on purpose.
		scored("f", 95, model.LevelMedium, 1),
	}
}

func TestFilterAndSort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter LevelFilter
		sort   SortType
		want   []string
	}{
		{"desc", LevelAll, SortProbabilityDesc, []string{"f", "b", "e", "d", "a", "c"}},
		{"asc", LevelAll, SortProbabilityAsc, []string{"c", "a", "d", "e", "b", "f"}},
		{"level", LevelAll, SortLevel, []string{"b", "e", "f", "d", "a", "c"}},
		{"high only", LevelFilter(model.LevelHigh), SortProbabilityAsc, []string{"e", "b"}},
		{"low only", LevelFilter(model.LevelLow), SortLevel, []string{"c"}},
		{"empty filter is all", "", "", []string{"f", "b", "e", "d", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ids(FilterAndSort(fixture(), tt.filter, tt.sort)))
		})
	}
}

func TestFilterAndSort_StableAndCopy(t *testing.T) {
	t.Parallel()

	in := []model.SuspicionResult{
		scored("x", 50, model.LevelMedium, 0),
		scored("y", 50, model.LevelMedium, 0),
		scored("z", 50, model.LevelMedium, 0),
	}
	out := FilterAndSort(in, LevelAll, SortLevel)
	assert.Equal(t, []string{"x", "y", "z"}, ids(out))

	out[0].LotID = "mutated"
	assert.Equal(t, "x", in[0].LotID)

	assert.Empty(t, FilterAndSort(nil, LevelAll, SortLevel))
}

func TestParseSortType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SortProbabilityAsc, ParseSortType("probability_asc"))
	assert.Equal(t, SortLevel, ParseSortType(" LEVEL "))
	assert.Equal(t, SortProbabilityDesc, ParseSortType(""))
	assert.Equal(t, SortProbabilityDesc, ParseSortType("random"))
}

func TestParseLevelFilter(t *testing.T) {
	t.Parallel()

	f, err := ParseLevelFilter("")
	require.NoError(t, err)
	assert.Equal(t, LevelAll, f)

	f, err = ParseLevelFilter("Высокий")
	require.NoError(t, err)
	assert.Equal(t, LevelFilter(model.LevelHigh), f)

	f, err = ParseLevelFilter("low")
	require.NoError(t, err)
	assert.Equal(t, LevelFilter(model.LevelLow), f)

	_, err = ParseLevelFilter("critical")
	assert.Error(t, err)
}

var keepDigitsAndComma = regexp.MustCompile(`[^\d,]`)

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1234567,89", keepDigitsAndComma.ReplaceAllString(FormatAmount(1234567.891), ""))
	assert.Equal(t, "0,00", keepDigitsAndComma.ReplaceAllString(FormatAmount(0), ""))
	assert.Equal(t, "Не указано", FormatAmount(math.NaN()))
	assert.Equal(t, "Не указано", FormatAmount(math.Inf(1)))
}

func TestFormatProbability(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12.3%", FormatProbability(12.34))
	assert.Equal(t, "100.0%", FormatProbability(100))
	assert.Equal(t, "0.0%", FormatProbability(0))
}

func TestSummary(t *testing.T) {
	t.Parallel()

	s := Summary(fixture())
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, []LevelCount{
		{Level: model.LevelHigh, Count: 2},
		{Level: model.LevelMedium, Count: 3},
		{Level: model.LevelLow, Count: 1},
	}, s.ByLevel)
	assert.InDelta(t, 62.5, s.AvgPercentage, 1e-9)
	assert.InDelta(t, 95.0, s.MaxPercentage, 1e-9)
	assert.InDelta(t, 3000.0, s.HighRiskAmount, 1e-9)

	empty := Summary(nil)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AvgPercentage)
	assert.Len(t, empty.ByLevel, 3)
}
