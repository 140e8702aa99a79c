package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/agent"
	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/predict"
	"github.com/sells-group/lotwatch/internal/report"
	"github.com/sells-group/lotwatch/internal/scrape"
	"github.com/sells-group/lotwatch/internal/store"
)

// maxBodyBytes bounds request bodies, including uploaded HTML pages.
const maxBodyBytes = 10 << 20

// server exposes the app environment over HTTP.
type server struct {
	env        *appEnv
	defaultURL string
	interval   time.Duration
}

func newRouter(s *server, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/records", s.listRecords)
		r.Delete("/records", s.clearRecords)
		r.Put("/records/{lotID}", s.updateRecord)
		r.Delete("/records/{lotID}", s.removeRecord)

		r.Post("/fetch", s.fetch)
		r.Post("/extract", s.extract)

		r.Post("/agent/start", s.startAgent)
		r.Post("/agent/stop", s.stopAgent)
		r.Get("/agent/stats", s.agentStats)

		r.Post("/analyze", s.analyze)
		r.Post("/analyze/selected", s.analyzeSelected)
		r.Get("/results", s.results)

		r.Get("/logs", s.logs)
		r.Delete("/logs", s.clearLogs)

		r.Get("/selection", s.selection)
		r.Post("/selection", s.toggleSelection)
		r.Post("/selection/handoff", s.handOff)
	})
	return r
}

func (s *server) listRecords(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"records": s.env.Records.Snapshot()})
}

func (s *server) clearRecords(w http.ResponseWriter, _ *http.Request) {
	s.env.Records.Clear()
	s.env.Activity.Add("Records cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) updateRecord(w http.ResponseWriter, r *http.Request) {
	var rec model.Record
	if !decodeBody(w, r, &rec) {
		return
	}
	lotID := chi.URLParam(r, "lotID")
	if rec.LotID == "" {
		rec.LotID = lotID
	}
	if err := s.env.Records.Update(lotID, rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) removeRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.env.Records.Remove(chi.URLParam(r, "lotID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fetchRequest struct {
	URL string `json:"url"`
}

func (s *server) fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		req.URL = s.defaultURL
	}
	out, err := s.env.Agent.FetchOnce(r.Context(), req.URL, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": out,
		"records": s.env.Records.Snapshot(),
	})
}

// extract parses an uploaded page and appends what it finds to the records.
func (s *server) extract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return
	}
	recs, err := extractRecords(string(body), r.URL.Query().Get("mode"), r.URL.Query().Get("source"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	added := s.env.Records.Merge(recs, store.MergeAppend)
	s.env.Activity.Addf("Extracted %d records from uploaded page, %d new", len(recs), added)
	writeJSON(w, http.StatusOK, map[string]any{
		"records": recs,
		"added":   added,
	})
}

type startRequest struct {
	URL             string  `json:"url"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

func (s *server) startAgent(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		req.URL = s.defaultURL
	}
	interval := s.interval
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds * float64(time.Second))
	}

	err := s.env.Agent.Start(r.Context(), req.URL, interval)
	if errors.Is(err, agent.ErrInvalidURL) {
		writeError(w, err)
		return
	}
	resp := map[string]any{"status": s.env.Agent.Status()}
	if err != nil {
		resp["initial_fetch_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) stopAgent(w http.ResponseWriter, _ *http.Request) {
	s.env.Agent.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"status": s.env.Agent.Status()})
}

func (s *server) agentStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.env.Agent.Status())
}

// analyze scores the posted records, or the current record set when the
// body is empty.
func (s *server) analyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return
	}
	recs := s.env.Records.Snapshot()
	if len(body) > 0 {
		if recs, err = report.DecodeRecordsJSON(body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	if err := s.env.Submitter.Analyze(r.Context(), recs); err != nil {
		s.env.Activity.Addf("Analysis failed: %v", err)
		writeError(w, err)
		return
	}
	s.env.Activity.Addf("Analyzed %d records", len(recs))
	s.results(w, r)
}

func (s *server) analyzeSelected(w http.ResponseWriter, r *http.Request) {
	selected, err := s.env.Selection.TakeForAnalysis(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if len(selected) == 0 {
		writeError(w, store.ErrNothingSelected)
		return
	}
	if err := s.env.Submitter.AnalyzeSelected(r.Context(), selected); err != nil {
		writeError(w, err)
		return
	}
	s.results(w, r)
}

func (s *server) results(w http.ResponseWriter, r *http.Request) {
	filter, err := predict.ParseLevelFilter(r.URL.Query().Get("level"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	results, execTime := s.env.Results.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"results":        predict.FilterAndSort(results, filter, predict.ParseSortType(r.URL.Query().Get("sort"))),
		"execution_time": execTime,
		"summary":        predict.Summary(results),
	})
}

func (s *server) logs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.env.Activity.Lines()})
}

func (s *server) clearLogs(w http.ResponseWriter, _ *http.Request) {
	s.env.Activity.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) selection(w http.ResponseWriter, r *http.Request) {
	ids, data, err := s.env.Selection.Selected(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot_ids": ids, "lots": data})
}

type toggleRequest struct {
	LotID string `json:"lot_id"`
}

func (s *server) toggleSelection(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, _ := s.env.Results.Get()
	on, err := s.env.Selection.Toggle(r.Context(), req.LotID, results)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot_id": req.LotID, "selected": on})
}

func (s *server) handOff(w http.ResponseWriter, r *http.Request) {
	handed, err := s.env.Selection.HandOff(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": len(handed)})
}

type errorBody struct {
	Error    string `json:"error"`
	Guidance string `json:"guidance,omitempty"`
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var (
		fe *scrape.FetchError
		se *predict.ServiceError
	)
	switch {
	case errors.Is(err, agent.ErrInvalidURL),
		errors.Is(err, predict.ErrInvalidFile),
		errors.Is(err, predict.ErrEmptyInput),
		errors.Is(err, store.ErrNothingSelected),
		errors.Is(err, store.ErrUnknownLot):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateLot):
		return http.StatusConflict
	case errors.Is(err, agent.ErrNoRecords):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fe), errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var fe *scrape.FetchError
	if errors.As(err, &fe) {
		body.Guidance = fe.Guidance()
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
