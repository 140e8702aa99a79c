// Package scrape retrieves goszakup.gov.kz pages through an ordered chain of
// fetch strategies: public proxies and a direct browser-like request.
package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Proxy names a read-through proxy template.
type Proxy struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Template string `mapstructure:"template" yaml:"template"`
}

// DefaultProxies returns the proxies used when none are configured. The
// first one is tried before the direct request, the rest after it.
func DefaultProxies() []Proxy {
	return []Proxy{
		{Name: "allorigins", Template: AllOriginsTemplate},
		{Name: "corsproxy", Template: CorsProxyTemplate},
	}
}

// Options configures the default strategy set.
type Options struct {
	Proxies           []Proxy
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Chain tries strategies in order, returning the first body retrieved.
type Chain struct {
	strategies []Strategy
	observer   AttemptObserver
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewChain creates a Chain trying strategies in the given order.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, now: time.Now}
}

// NewDefaultChain builds the standard order: first proxy, direct request,
// remaining proxies.
func NewDefaultChain(opts Options) *Chain {
	proxies := opts.Proxies
	if len(proxies) == 0 {
		proxies = DefaultProxies()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	strategies := []Strategy{NewProxyStrategy(proxies[0].Name, proxies[0].Template, timeout)}
	strategies = append(strategies, NewDirectStrategy(opts.UserAgent, timeout))
	for _, p := range proxies[1:] {
		strategies = append(strategies, NewProxyStrategy(p.Name, p.Template, timeout))
	}

	c := NewChain(strategies...)
	if opts.RequestsPerSecond > 0 {
		c.WithRateLimit(opts.RequestsPerSecond)
	}
	return c
}

// WithObserver registers an observer notified after every attempt.
func (c *Chain) WithObserver(o AttemptObserver) *Chain {
	c.observer = o
	return c
}

// WithRateLimit caps how often the chain starts a fetch. Bursts of one.
func (c *Chain) WithRateLimit(perSecond float64) *Chain {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return c
}

// Strategies returns the strategy names in the order they are tried.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// FetchHTML tries each strategy in order. It returns the first body
// retrieved, or a *FetchError carrying every attempt when all fail.
// Strategies are not retried.
func (c *Chain) FetchHTML(ctx context.Context, target string) (string, error) {
	if len(c.strategies) == 0 {
		return "", eris.New("scrape: no strategies configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "scrape: rate limit wait")
		}
	}

	attempts := make([]Attempt, 0, len(c.strategies))
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Strategy: s.Name(), URL: target, Err: err})
			break
		}

		start := c.now()
		body, err := s.Fetch(ctx, target)
		a := Attempt{
			Strategy: s.Name(),
			URL:      target,
			Err:      err,
			Duration: c.now().Sub(start),
		}
		attempts = append(attempts, a)
		c.observe(a)

		if err == nil {
			return body, nil
		}
	}

	fe := newFetchError(target, attempts)
	zap.L().Warn("scrape: all strategies failed",
		zap.String("url", target),
		zap.String("cause", string(fe.Cause)),
		zap.Int("attempts", len(attempts)),
	)
	return "", fe
}

func (c *Chain) observe(a Attempt) {
	if a.Err != nil {
		zap.L().Debug("scrape: strategy failed, trying next",
			zap.String("strategy", a.Strategy),
			zap.String("url", a.URL),
			zap.Duration("duration", a.Duration),
			zap.Error(a.Err),
		)
	} else {
		zap.L().Debug("scrape: strategy succeeded",
			zap.String("strategy", a.Strategy),
			zap.String("url", a.URL),
			zap.Duration("duration", a.Duration),
		)
	}
	if c.observer != nil {
		c.observer.ObserveAttempt(a)
	}
}
