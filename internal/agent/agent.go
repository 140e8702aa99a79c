// Package agent polls the procurement portal on a schedule, merges newly
// seen lots into the record store and optionally hands them to the scoring
// service.
package agent

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/activity"
	"github.com/sells-group/lotwatch/internal/model"
	"github.com/sells-group/lotwatch/internal/scrape"
	"github.com/sells-group/lotwatch/internal/store"
)

// Defaults.
const (
	DefaultAllowedDomain = "goszakup.gov.kz"
	DefaultURL           = "https://goszakup.gov.kz/ru/search/lots"
	DefaultInterval      = 60 * time.Second
	DefaultMinInterval   = 30 * time.Second
)

var (
	// ErrInvalidURL is returned for URLs outside the allowed domain.
	ErrInvalidURL = eris.New("agent: invalid url")
	// ErrNoRecords is returned when a page yields no records.
	ErrNoRecords = eris.New("agent: no records found")
)

// State is the agent lifecycle state.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// HTMLFetcher retrieves a page. *scrape.Chain implements it.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Analyzer scores the record set after a fetch.
type Analyzer interface {
	Analyze(ctx context.Context, recs []model.Record) error
}

// RowExtractor turns a search results page into records.
type RowExtractor func(html string) []model.Record

// Config tunes the agent.
type Config struct {
	AllowedDomain string
	MinInterval   time.Duration
	AutoAnalyze   bool
}

// FetchOutcome describes one FetchOnce call.
type FetchOutcome struct {
	URL        string `json:"url"`
	Background bool   `json:"background"`
	// Skipped is set when a background fetch ran while the agent was idle
	// or the URL was invalid.
	Skipped bool `json:"skipped,omitempty"`
	// Stale is set when the agent stopped or restarted during the fetch and
	// the records were dropped.
	Stale     bool `json:"stale,omitempty"`
	Extracted int  `json:"extracted"`
	Added     int  `json:"added"`
	Analyzed  bool `json:"analyzed,omitempty"`
}

// Agent owns the polling schedule and its counters.
type Agent struct {
	fetcher  HTMLFetcher
	extract  RowExtractor
	records  *store.Records
	analyzer Analyzer
	activity *activity.Log
	cfg      Config
	now      func() time.Time

	mu         sync.Mutex
	state      State
	url        string
	interval   time.Duration
	runID      string
	generation uint64
	stats      model.AgentStats
	cancel     context.CancelFunc

	wg sync.WaitGroup
}

// New creates an idle agent. analyzer and log may be nil.
func New(fetcher HTMLFetcher, extract RowExtractor, records *store.Records, analyzer Analyzer, log *activity.Log, cfg Config) *Agent {
	if cfg.AllowedDomain == "" {
		cfg.AllowedDomain = DefaultAllowedDomain
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	return &Agent{
		fetcher:  fetcher,
		extract:  extract,
		records:  records,
		analyzer: analyzer,
		activity: log,
		cfg:      cfg,
		now:      time.Now,
		state:    StateIdle,
	}
}

// ValidateURL checks that raw is an http(s) URL on the allowed domain or
// one of its subdomains.
func (a *Agent) ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return eris.Wrapf(ErrInvalidURL, "%q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return eris.Wrapf(ErrInvalidURL, "%q: unsupported scheme", raw)
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(a.cfg.AllowedDomain)
	if host != domain && !strings.HasSuffix(host, "."+domain) {
		return eris.Wrapf(ErrInvalidURL, "%q: host must be %s", raw, domain)
	}
	return nil
}

// FetchOnce fetches target, extracts its rows and stores them. A
// background fetch merges new lots into the store and is a no-op unless the
// agent is active; a foreground fetch replaces the store.
func (a *Agent) FetchOnce(ctx context.Context, target string, background bool) (FetchOutcome, error) {
	out := FetchOutcome{URL: target, Background: background}
	log := zap.L().With(zap.String("component", "agent"), zap.Bool("background", background))

	a.mu.Lock()
	if background && a.state != StateActive {
		a.mu.Unlock()
		out.Skipped = true
		return out, nil
	}
	gen := a.generation
	a.mu.Unlock()

	if err := a.ValidateURL(target); err != nil {
		if background {
			log.Debug("agent: skipping invalid url", zap.String("url", target))
			out.Skipped = true
			return out, nil
		}
		a.activity.Addf("Invalid URL: %s", target)
		return out, err
	}

	a.mu.Lock()
	a.stats.TotalFetches++
	a.stats.LastFetch = a.now().UTC()
	a.mu.Unlock()

	a.activity.Addf("Fetching %s", target)
	html, err := a.fetcher.FetchHTML(ctx, target)
	if err != nil {
		a.activity.Addf("Fetch failed: %v", err)
		var fe *scrape.FetchError
		if errors.As(err, &fe) {
			a.activity.Add(fe.Guidance())
		}
		return out, err
	}

	recs := a.extract(html)
	out.Extracted = len(recs)
	if len(recs) == 0 {
		a.activity.Add("No records found on the page")
		return out, eris.Wrapf(ErrNoRecords, "%s", target)
	}

	a.mu.Lock()
	if background && (a.state != StateActive || a.generation != gen) {
		a.mu.Unlock()
		log.Info("agent: dropping results of a stale fetch", zap.String("url", target))
		out.Stale = true
		return out, nil
	}
	if background {
		out.Added = a.records.Merge(recs, store.MergeAppend)
		a.stats.NewRecords += out.Added
		a.stats.TotalRecords += out.Added
	} else {
		out.Added = a.records.Merge(recs, store.MergeReplace)
		a.stats.TotalRecords = out.Added
	}
	a.stats.SuccessfulFetches++
	active := a.state == StateActive
	a.mu.Unlock()

	if background {
		a.activity.Addf("Found %d records, %d new", len(recs), out.Added)
	} else {
		a.activity.Addf("Loaded %d records", out.Added)
	}
	log.Info("agent: fetch complete",
		zap.String("url", target),
		zap.Int("extracted", len(recs)),
		zap.Int("added", out.Added),
	)

	if active && a.cfg.AutoAnalyze && a.analyzer != nil && out.Added > 0 {
		out.Analyzed = a.analyze(ctx, log)
	}
	return out, nil
}

func (a *Agent) analyze(ctx context.Context, log *zap.Logger) bool {
	snapshot := a.records.Snapshot()
	a.activity.Addf("Sending %d records for analysis", len(snapshot))
	if err := a.analyzer.Analyze(ctx, snapshot); err != nil {
		log.Error("agent: analysis failed", zap.Error(err))
		a.activity.Addf("Analysis failed: %v", err)
		return false
	}
	a.activity.Add("Analysis complete")
	return true
}

// Start activates the agent on target, fetches once in the foreground and
// then polls every interval. Intervals below the configured minimum are
// raised to it. Starting an active agent replaces its schedule. The
// foreground fetch error, if any, is returned but the schedule keeps
// running.
func (a *Agent) Start(ctx context.Context, target string, interval time.Duration) error {
	if err := a.ValidateURL(target); err != nil {
		return err
	}
	if interval < a.cfg.MinInterval {
		interval = a.cfg.MinInterval
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.generation++
	gen := a.generation
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.state = StateActive
	a.url = target
	a.interval = interval
	a.runID = uuid.NewString()
	runID := a.runID
	a.mu.Unlock()

	zap.L().Info("agent: started",
		zap.String("run_id", runID),
		zap.String("url", target),
		zap.Duration("interval", interval),
	)
	a.activity.Addf("Agent started, polling every %s", interval)

	_, err := a.FetchOnce(ctx, target, false)
	if err != nil {
		zap.L().Warn("agent: initial fetch failed", zap.String("run_id", runID), zap.Error(err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return err
	}
	a.wg.Add(1)
	go a.run(runCtx, target, interval, runID)
	return err
}

func (a *Agent) run(ctx context.Context, target string, interval time.Duration, runID string) {
	defer a.wg.Done()

	log := zap.L().With(zap.String("component", "agent"), zap.String("run_id", runID))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Ticks of one run never overlap. A tick left over from a previous run
	// does not hold up this one.
	var ticking atomic.Bool
	for {
		select {
		case <-ctx.Done():
			log.Debug("agent: schedule stopped")
			return
		case <-ticker.C:
			if !ticking.CompareAndSwap(false, true) {
				log.Debug("agent: previous tick still running, skipping")
				continue
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				defer ticking.Store(false)
				a.tick(ctx, target, log)
			}()
		}
	}
}

func (a *Agent) tick(ctx context.Context, target string, log *zap.Logger) {
	// The fetch outlives Stop; its results are dropped by the generation
	// check instead.
	out, err := a.FetchOnce(context.WithoutCancel(ctx), target, true)
	switch {
	case errors.Is(err, ErrNoRecords):
		log.Info("agent: tick found no records", zap.String("url", target))
	case err != nil:
		log.Warn("agent: tick failed", zap.Error(err))
	case out.Added > 0:
		log.Info("agent: new records", zap.Int("added", out.Added))
	}
}

// Stop cancels the schedule. It is safe to call on an idle agent.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateIdle {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.generation++
	a.state = StateIdle
	zap.L().Info("agent: stopped", zap.String("run_id", a.runID))
	a.activity.Add("Agent stopped")
}

// Close stops the agent and waits for the polling goroutine to exit.
func (a *Agent) Close() {
	a.Stop()
	a.wg.Wait()
}

// State returns the lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Active reports whether the agent is polling.
func (a *Agent) Active() bool {
	return a.State() == StateActive
}

// Stats returns a copy of the counters.
func (a *Agent) Stats() model.AgentStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Status is a point-in-time view of the agent.
type Status struct {
	State    State            `json:"state"`
	URL      string           `json:"url,omitempty"`
	Interval float64          `json:"interval_seconds,omitempty"`
	RunID    string           `json:"run_id,omitempty"`
	Stats    model.AgentStats `json:"stats"`
}

// Status returns the state, schedule and counters together.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		State:    a.state,
		URL:      a.url,
		Interval: a.interval.Seconds(),
		RunID:    a.runID,
		Stats:    a.stats,
	}
}

// AttemptLogger reports every fetch strategy attempt to log.
func AttemptLogger(log *activity.Log) scrape.AttemptObserver {
	return scrape.ObserverFunc(func(at scrape.Attempt) {
		if at.OK() {
			log.Addf("%s: fetched %s in %s", at.Strategy, at.URL, at.Duration.Round(time.Millisecond))
			return
		}
		log.Addf("%s: %v", at.Strategy, at.Err)
	})
}
