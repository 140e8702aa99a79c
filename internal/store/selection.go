package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lotwatch/internal/model"
)

// Selection keys. Each value is a JSON document overwritten wholesale.
const (
	KeySelectedLots            = "selectedLots"
	KeySelectedLotsData        = "selectedLotsData"
	KeySelectedLotsForAnalysis = "selectedLotsForAnalysis"
)

// Selection persists the lots a user picked from analysis results and hands
// them off for another analysis run.
type Selection struct {
	db *sql.DB
}

// OpenSelection opens (and migrates) the selection store at dsn. An empty
// dsn selects MemoryDSN.
func OpenSelection(ctx context.Context, dsn string) (*Selection, error) {
	db, err := openSQLite(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, selectionMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate selection")
	}
	return &Selection{db: db}, nil
}

// Close releases the database.
func (s *Selection) Close() error {
	return s.db.Close()
}

// Toggle deselects lotID when it is selected; otherwise it selects the
// matching entry of candidates. It reports whether the lot is selected
// afterwards.
func (s *Selection) Toggle(ctx context.Context, lotID string, candidates []model.SuspicionResult) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "selection: begin")
	}
	defer func() { _ = tx.Rollback() }()

	ids, data, err := readSelection(ctx, tx)
	if err != nil {
		return false, err
	}

	selected := false
	if i := slices.Index(ids, lotID); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
		data = slices.DeleteFunc(data, func(r model.SuspicionResult) bool { return r.LotID == lotID })
	} else {
		j := slices.IndexFunc(candidates, func(r model.SuspicionResult) bool { return r.LotID == lotID })
		if j < 0 {
			return false, eris.Wrapf(ErrUnknownLot, "selection: toggle %s", lotID)
		}
		ids = append(ids, lotID)
		data = append(data, candidates[j])
		selected = true
	}

	if err := writeJSON(ctx, tx, KeySelectedLots, ids); err != nil {
		return false, err
	}
	if err := writeJSON(ctx, tx, KeySelectedLotsData, data); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "selection: commit")
	}
	return selected, nil
}

// Selected returns the selected lot ids and their results, in selection
// order.
func (s *Selection) Selected(ctx context.Context) ([]string, []model.SuspicionResult, error) {
	return readSelection(ctx, s.db)
}

// HandOff moves the selected results to the analysis key and clears the
// selection. It fails with ErrNothingSelected when the selection is empty.
func (s *Selection) HandOff(ctx context.Context) ([]model.SuspicionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "selection: begin")
	}
	defer func() { _ = tx.Rollback() }()

	_, data, err := readSelection(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNothingSelected
	}

	if err := writeJSON(ctx, tx, KeySelectedLotsForAnalysis, data); err != nil {
		return nil, err
	}
	if err := writeJSON(ctx, tx, KeySelectedLots, []string{}); err != nil {
		return nil, err
	}
	if err := writeJSON(ctx, tx, KeySelectedLotsData, []model.SuspicionResult{}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "selection: commit")
	}
	return data, nil
}

// TakeForAnalysis returns the handed-off results and removes them. It
// returns an empty slice when nothing was handed off.
func (s *Selection) TakeForAnalysis(ctx context.Context) ([]model.SuspicionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "selection: begin")
	}
	defer func() { _ = tx.Rollback() }()

	var data []model.SuspicionResult
	if err := readJSON(ctx, tx, KeySelectedLotsForAnalysis, &data); err != nil {
		return nil, err
	}
	if err := deleteValue(ctx, tx, KeySelectedLotsForAnalysis); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "selection: commit")
	}
	if data == nil {
		data = []model.SuspicionResult{}
	}
	return data, nil
}

func readSelection(ctx context.Context, q execer) ([]string, []model.SuspicionResult, error) {
	ids := []string{}
	data := []model.SuspicionResult{}
	if err := readJSON(ctx, q, KeySelectedLots, &ids); err != nil {
		return nil, nil, err
	}
	if err := readJSON(ctx, q, KeySelectedLotsData, &data); err != nil {
		return nil, nil, err
	}
	return ids, data, nil
}

func readJSON(ctx context.Context, q execer, key string, dst any) error {
	raw, ok, err := getValue(ctx, q, key)
	if err != nil || !ok {
		return err
	}
	return eris.Wrapf(json.Unmarshal([]byte(raw), dst), "selection: decode %s", key)
}

func writeJSON(ctx context.Context, q execer, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "selection: encode %s", key)
	}
	return putValue(ctx, q, key, string(b))
}
