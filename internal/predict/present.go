package predict

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/lotwatch/internal/model"
)

// LevelFilter restricts results to one level; LevelAll keeps everything.
type LevelFilter string

const LevelAll LevelFilter = "all"

// SortType orders analysis results.
type SortType string

const (
	SortProbabilityAsc  SortType = "probability_asc"
	SortProbabilityDesc SortType = "probability_desc"
	SortLevel           SortType = "level"
)

// ParseSortType returns the sort mode for s, defaulting to
// SortProbabilityDesc.
func ParseSortType(s string) SortType {
	switch SortType(strings.ToLower(strings.TrimSpace(s))) {
	case SortProbabilityAsc:
		return SortProbabilityAsc
	case SortLevel:
		return SortLevel
	default:
		return SortProbabilityDesc
	}
}

// ParseLevelFilter accepts "all" (or empty) and any label ParseLevel knows.
func ParseLevelFilter(s string) (LevelFilter, error) {
	if s == "" || strings.EqualFold(s, string(LevelAll)) {
		return LevelAll, nil
	}
	l := model.ParseLevel(s)
	if !l.Valid() {
		return "", eris.Errorf("predict: unknown level %q", s)
	}
	return LevelFilter(l), nil
}

// FilterAndSort returns a filtered, sorted copy of results.
func FilterAndSort(results []model.SuspicionResult, filter LevelFilter, sortType SortType) []model.SuspicionResult {
	out := make([]model.SuspicionResult, 0, len(results))
	for _, r := range results {
		if filter == "" || filter == LevelAll || r.SuspicionLevel == model.Level(filter) {
			out = append(out, r)
		}
	}

	switch sortType {
	case SortProbabilityAsc:
		slices.SortStableFunc(out, func(a, b model.SuspicionResult) int {
			return cmpFloat(a.SuspicionPercentage, b.SuspicionPercentage)
		})
	case SortLevel:
		slices.SortStableFunc(out, func(a, b model.SuspicionResult) int {
			if d := b.SuspicionLevel.Weight() - a.SuspicionLevel.Weight(); d != 0 {
				return d
			}
			return cmpFloat(b.SuspicionPercentage, a.SuspicionPercentage)
		})
	default:
		slices.SortStableFunc(out, func(a, b model.SuspicionResult) int {
			return cmpFloat(b.SuspicionPercentage, a.SuspicionPercentage)
		})
	}
	return out
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var ruPrinter = message.NewPrinter(language.Russian)

// FormatAmount renders v with Russian digit grouping and two decimals.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "Не указано"
	}
	return ruPrinter.Sprintf("%.2f", v)
}

// FormatProbability renders a percentage with one decimal, e.g. "12.3%".
func FormatProbability(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// LevelCount is one row of Summary.
type LevelCount struct {
	Level model.Level `json:"level"`
	Count int         `json:"count"`
}

// Stats summarizes a result set.
type Stats struct {
	Total          int          `json:"total"`
	ByLevel        []LevelCount `json:"by_level"`
	AvgPercentage  float64      `json:"avg_percentage"`
	MaxPercentage  float64      `json:"max_percentage"`
	HighRiskAmount float64      `json:"high_risk_amount"`
}

// Summary counts results per level, most severe first.
func Summary(results []model.SuspicionResult) Stats {
	s := Stats{Total: len(results)}
	counts := map[model.Level]int{}
	var sum float64
	for _, r := range results {
		counts[r.SuspicionLevel]++
		sum += r.SuspicionPercentage
		s.MaxPercentage = max(s.MaxPercentage, r.SuspicionPercentage)
		if r.SuspicionLevel == model.LevelHigh {
			s.HighRiskAmount += r.Amount
		}
	}
	for _, l := range model.AllLevels() {
		s.ByLevel = append(s.ByLevel, LevelCount{Level: l, Count: counts[l]})
	}
	if len(results) > 0 {
		s.AvgPercentage = sum / float64(len(results))
	}
	return s
}
