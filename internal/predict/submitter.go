package predict

import (
	"context"

	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/store"
)

// Submitter scores records and keeps the latest results.
type Submitter struct {
	client  Client
	results *store.Results
}

// NewSubmitter creates a Submitter storing into results.
func NewSubmitter(client Client, results *store.Results) *Submitter {
	return &Submitter{client: client, results: results}
}

// Analyze scores recs and replaces the stored results.
func (s *Submitter) Analyze(ctx context.Context, recs []model.Record) error {
	resp, err := s.client.Analyze(ctx, recs)
	if err != nil {
		return err
	}
	s.results.Set(resp.Predictions, resp.ExecutionTime)
	return nil
}

// AnalyzeSelected re-scores previously scored results.
func (s *Submitter) AnalyzeSelected(ctx context.Context, selected []model.SuspicionResult) error {
	recs := make([]model.Record, len(selected))
	for i, r := range selected {
		recs[i] = r.Record()
	}
	return s.Analyze(ctx, recs)
}

// Results returns the backing result store.
func (s *Submitter) Results() *store.Results {
	return s.results
}
