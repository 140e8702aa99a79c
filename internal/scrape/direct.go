package scrape

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"
)

// DefaultUserAgent is a desktop browser user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// ErrEmptyBody is returned when a strategy receives a blank document.
var ErrEmptyBody = eris.New("empty response body")

// browserHeaders make the direct request look like a top-level navigation.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "ru-RU,ru;q=0.9,en;q=0.8",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Upgrade-Insecure-Requests": "1",
}

// DirectStrategy requests the page from the portal itself.
type DirectStrategy struct {
	userAgent string
	timeout   time.Duration
}

// NewDirectStrategy creates a DirectStrategy. An empty userAgent selects
// DefaultUserAgent.
func NewDirectStrategy(userAgent string, timeout time.Duration) *DirectStrategy {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &DirectStrategy{userAgent: userAgent, timeout: timeout}
}

func (d *DirectStrategy) Name() string { return "direct" }

// Fetch visits target with a fresh collector so repeated polling of the same
// URL is never suppressed as a revisit.
func (d *DirectStrategy) Fetch(ctx context.Context, target string) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(d.userAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
	)
	if d.timeout > 0 {
		c.SetRequestTimeout(d.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range browserHeaders {
			r.Headers.Set(k, v)
		}
	})

	var (
		status int
		header http.Header
		body   []byte
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
		if r.Headers != nil {
			header = *r.Headers
		}
	})

	if err := c.Visit(target); err != nil {
		return "", eris.Wrap(err, "direct: request")
	}

	if blocked, bt := DetectBlock(status, header, body); blocked {
		return "", &BlockedError{Strategy: d.Name(), Type: bt}
	}
	if status < 200 || status >= 300 {
		return "", &StatusError{Strategy: d.Name(), StatusCode: status}
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", eris.Wrap(ErrEmptyBody, "direct")
	}
	return string(body), nil
}
