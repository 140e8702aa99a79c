// Package predict talks to the lot scoring service and prepares its results
// for display.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/resilience"
)

// DefaultBaseURL is where the scoring service listens by default.
const DefaultBaseURL = "http://localhost:8000"

// UploadFileName is the multipart file name the service expects.
const UploadFileName = "table_data.json"

var (
	// ErrInvalidFile is returned by AnalyzeFile for anything but a JSON
	// array of records in a .json file.
	ErrInvalidFile = eris.New("predict: invalid file")
	// ErrEmptyInput is returned when there is nothing to analyze.
	ErrEmptyInput = eris.New("predict: no records to analyze")
)

// Mode selects how records are sent to the service.
type Mode string

const (
	ModeMultipart Mode = "multipart"
	ModeJSON      Mode = "json"
)

// Response is the scoring service reply.
type Response struct {
	Success       bool                    `json:"success"`
	Predictions   []model.SuspicionResult `json:"predictions"`
	Error         string                  `json:"error,omitempty"`
	ExecutionTime float64                 `json:"execution_time"`
}

// UnmarshalJSON also accepts the camel-case "executionTime" field.
func (r *Response) UnmarshalJSON(b []byte) error {
	type plain Response
	var aux struct {
		plain
		ExecutionTimeCamel *float64 `json:"executionTime"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Response(aux.plain)
	if r.ExecutionTime == 0 && aux.ExecutionTimeCamel != nil {
		r.ExecutionTime = *aux.ExecutionTimeCamel
	}
	return nil
}

// ServiceError reports a failed analysis: a non-2xx status or a reply with
// success=false.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("predict: service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("predict: service returned status %d: %s", e.StatusCode, e.Message)
}

// Client defines the scoring service operations.
type Client interface {
	// Analyze normalizes recs and scores them.
	Analyze(ctx context.Context, recs []model.Record) (*Response, error)
	// AnalyzeFile uploads a JSON file of records as-is.
	AnalyzeFile(ctx context.Context, path string) (*Response, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithMode selects multipart (default) or JSON uploads.
func WithMode(m Mode) Option {
	return func(c *httpClient) {
		if m == ModeJSON || m == ModeMultipart {
			c.mode = m
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithMaxAttempts sets how many times a transient failure is tried.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		c.policy = c.policy.WithAttempts(n)
	}
}

// WithBackoff sets the delay before the first retry and the cap on later
// ones.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(c *httpClient) {
		if base > 0 {
			c.policy.Base = base
		}
		if maxDelay > 0 {
			c.policy.Max = maxDelay
		}
	}
}

// WithHTTPClient sets the underlying HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = resty.NewWithClient(hc).SetBaseURL(c.baseURL)
	}
}

type httpClient struct {
	baseURL string
	mode    Mode
	http    *resty.Client
	policy  resilience.Policy
}

// NewClient creates a scoring service client for baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &httpClient{
		baseURL: baseURL,
		mode:    ModeMultipart,
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(2 * time.Minute),
		policy:  resilience.DefaultPolicy("predict.analyze").WithAttempts(2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Analyze(ctx context.Context, recs []model.Record) (*Response, error) {
	if len(recs) == 0 {
		return nil, ErrEmptyInput
	}
	payload, err := json.MarshalIndent(model.NormalizeAll(recs), "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "predict: marshal records")
	}
	return c.submit(ctx, payload, len(recs))
}

func (c *httpClient) AnalyzeFile(ctx context.Context, path string) (*Response, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, eris.Wrapf(ErrInvalidFile, "%s: not a .json file", filepath.Base(path))
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "predict: read %s", path)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, eris.Wrapf(ErrInvalidFile, "%s: expected a JSON array of records", filepath.Base(path))
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	return c.submit(ctx, payload, len(rows))
}

func (c *httpClient) submit(ctx context.Context, payload []byte, count int) (*Response, error) {
	log := zap.L().With(zap.String("component", "predict"), zap.String("mode", string(c.mode)))
	log.Debug("predict: submitting records", zap.Int("records", count), zap.Int("bytes", len(payload)))

	resp, err := resilience.Call(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	for i := range resp.Predictions {
		p := &resp.Predictions[i]
		if p.SuspicionLevel == "" {
			p.SuspicionLevel = model.LevelForPercentage(p.SuspicionPercentage)
		}
	}
	log.Info("predict: analysis complete",
		zap.Int("predictions", len(resp.Predictions)),
		zap.Float64("execution_time", resp.ExecutionTime),
	)
	return resp, nil
}

func (c *httpClient) post(ctx context.Context, payload []byte) (*Response, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")
	if c.mode == ModeJSON {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	} else {
		req.SetMultipartField("file", UploadFileName, "application/json", bytes.NewReader(payload))
	}

	raw, err := req.Post("/analyze")
	if err != nil {
		return nil, eris.Wrap(err, "predict: request failed")
	}

	var out Response
	decodeErr := json.Unmarshal(raw.Body(), &out)

	if !raw.IsSuccess() {
		se := &ServiceError{StatusCode: raw.StatusCode(), Message: out.Error}
		if decodeErr != nil || se.Message == "" {
			se.Message = strings.TrimSpace(truncate(string(raw.Body()), 200))
		}
		if resilience.TransientStatus(se.StatusCode) {
			return nil, resilience.MarkTransient(se, se.StatusCode)
		}
		return nil, se
	}
	if decodeErr != nil {
		return nil, eris.Wrap(decodeErr, "predict: unmarshal response")
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "analysis failed"
		}
		return nil, &ServiceError{StatusCode: raw.StatusCode(), Message: msg}
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
