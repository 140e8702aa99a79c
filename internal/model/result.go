package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Level is the suspicion bucket assigned by the prediction service.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// AllLevels returns the levels in severity order, most severe first.
func AllLevels() []Level {
	return []Level{LevelHigh, LevelMedium, LevelLow}
}

// ParseLevel accepts the English labels as well as the Russian ones the
// service emits. Unknown labels are returned unchanged.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "высокий":
		return LevelHigh
	case "medium", "средний":
		return LevelMedium
	case "low", "низкий":
		return LevelLow
	default:
		return Level(strings.TrimSpace(s))
	}
}

// Weight orders levels for sorting: High > Medium > Low > unknown.
func (l Level) Weight() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// Russian returns the label shown in the dashboard.
func (l Level) Russian() string {
	switch l {
	case LevelHigh:
		return "Высокий"
	case LevelMedium:
		return "Средний"
	case LevelLow:
		return "Низкий"
	default:
		return string(l)
	}
}

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	return l.Weight() > 0
}

// UnmarshalJSON normalizes Russian labels to their English constants.
func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = ParseLevel(s)
	return nil
}

// LevelForPercentage mirrors the thresholds applied by the prediction
// service. Only used to back-fill a response that omits the level.
func LevelForPercentage(p float64) Level {
	switch {
	case p < 25:
		return LevelLow
	case p < 75:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// SuspicionResult is a scored record returned by the prediction service.
type SuspicionResult struct {
	AnalysisRecord      `yaml:",inline"`
	SuspicionPercentage float64 `json:"suspicion_percentage" yaml:"suspicion_percentage"`
	SuspicionLevel      Level   `json:"suspicion_level" yaml:"suspicion_level"`
}

// UnmarshalJSON also accepts "suspicion_probability", the field name used by
// older versions of the scoring script.
func (r *SuspicionResult) UnmarshalJSON(b []byte) error {
	type plain SuspicionResult
	var aux struct {
		plain
		SuspicionProbability *float64 `json:"suspicion_probability"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = SuspicionResult(aux.plain)
	if aux.SuspicionProbability != nil && r.SuspicionPercentage == 0 {
		r.SuspicionPercentage = *aux.SuspicionProbability
	}
	return nil
}

// AgentStats are the process-local polling counters.
type AgentStats struct {
	TotalFetches      int       `json:"total_fetches"`
	SuccessfulFetches int       `json:"successful_fetches"`
	NewRecords        int       `json:"new_records"`
	TotalRecords      int       `json:"total_records"`
	LastFetch         time.Time `json:"last_fetch,omitempty"`
}
