package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LevelHigh, ParseLevel("High"))
	assert.Equal(t, LevelHigh, ParseLevel("Высокий"))
	assert.Equal(t, LevelMedium, ParseLevel(" средний "))
	assert.Equal(t, LevelLow, ParseLevel("low"))
	assert.Equal(t, Level("Unknown"), ParseLevel("Unknown"))
}

func TestLevel_Weight(t *testing.T) {
	t.Parallel()

	assert.Greater(t, LevelHigh.Weight(), LevelMedium.Weight())
	assert.Greater(t, LevelMedium.Weight(), LevelLow.Weight())
	assert.Greater(t, LevelLow.Weight(), Level("").Weight())
	assert.False(t, Level("x").Valid())
	assert.Equal(t, "Низкий", LevelLow.Russian())
}

func TestLevelForPercentage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LevelLow, LevelForPercentage(0))
	assert.Equal(t, LevelLow, LevelForPercentage(24.9))
	assert.Equal(t, LevelMedium, LevelForPercentage(25))
	assert.Equal(t, LevelMedium, LevelForPercentage(74.99))
	assert.Equal(t, LevelHigh, LevelForPercentage(75))
	assert.Equal(t, LevelHigh, LevelForPercentage(100))
}

func TestSuspicionResult_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	t.Run("percentage field", func(t *testing.T) {
		t.Parallel()
		var r SuspicionResult
		err := json.Unmarshal([]byte(`{"lot_id":"1-ЗЦП1","amount":100.5,"suspicion_percentage":80,"suspicion_level":"Высокий"}`), &r)
		require.NoError(t, err)
		assert.Equal(t, "1-ЗЦП1", r.LotID)
		assert.InDelta(t, 100.5, r.Amount, 1e-9)
		assert.InDelta(t, 80, r.SuspicionPercentage, 1e-9)
		assert.Equal(t, LevelHigh, r.SuspicionLevel)
	})

	t.Run("probability field", func(t *testing.T) {
		t.Parallel()
		var r SuspicionResult
		err := json.Unmarshal([]byte(`{"lot_id":"2","quantity":null,"suspicion_probability":12.5,"suspicion_level":"Низкий"}`), &r)
		require.NoError(t, err)
		assert.InDelta(t, 12.5, r.SuspicionPercentage, 1e-9)
		assert.Equal(t, LevelLow, r.SuspicionLevel)
		assert.Zero(t, r.Quantity)
	})

	t.Run("round trip keeps flat shape", func(t *testing.T) {
		t.Parallel()
		in := SuspicionResult{
			AnalysisRecord:      AnalysisRecord{LotID: "3", Subject: "Услуги"},
			SuspicionPercentage: 50,
			SuspicionLevel:      LevelMedium,
		}
		b, err := json.Marshal(in)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"lot_id":"3"`)
		assert.Contains(t, string(b), `"suspicion_level":"Medium"`)

		var out SuspicionResult
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, in, out)
	})
}
