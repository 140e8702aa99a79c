package scrape

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
)

// URLPlaceholder marks where the escaped target URL goes in a proxy template.
const URLPlaceholder = "{url}"

// Public read-through proxies tried before and after the direct request.
const (
	AllOriginsTemplate = "https://api.allorigins.win/raw?url={url}"
	CorsProxyTemplate  = "https://corsproxy.io/?{url}"
)

const maxBodyBytes = 10 << 20

// ProxyStrategy fetches a page through a read-through proxy.
type ProxyStrategy struct {
	name     string
	template string
	http     *resty.Client
}

// NewProxyStrategy creates a ProxyStrategy. The template must contain
// URLPlaceholder; a template without it gets the escaped URL appended.
func NewProxyStrategy(name, template string, timeout time.Duration) *ProxyStrategy {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	return &ProxyStrategy{name: name, template: template, http: client}
}

func (p *ProxyStrategy) Name() string { return p.name }

// ProxyURL returns the proxy URL for target.
func (p *ProxyStrategy) ProxyURL(target string) string {
	escaped := url.QueryEscape(target)
	if !strings.Contains(p.template, URLPlaceholder) {
		return p.template + escaped
	}
	return strings.ReplaceAll(p.template, URLPlaceholder, escaped)
}

// Fetch requests target through the proxy. Any non-2xx status fails.
func (p *ProxyStrategy) Fetch(ctx context.Context, target string) (string, error) {
	resp, err := p.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(p.ProxyURL(target))
	if err != nil {
		return "", eris.Wrapf(err, "%s: request", p.name)
	}
	raw := resp.RawBody()
	defer func() { _ = raw.Close() }()

	if !resp.IsSuccess() {
		return "", &StatusError{Strategy: p.name, StatusCode: resp.StatusCode()}
	}

	body, err := decodeBody(raw, resp.Header().Get("Content-Type"))
	if err != nil {
		return "", eris.Wrapf(err, "%s: read body", p.name)
	}
	if strings.TrimSpace(body) == "" {
		return "", eris.Wrapf(ErrEmptyBody, "%s", p.name)
	}
	return body, nil
}

// decodeBody reads at most maxBodyBytes and converts them to UTF-8 using the
// charset declared in contentType, sniffing the content when none is given.
func decodeBody(r io.Reader, contentType string) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return "", err
	}
	utf8Reader, err := charset.NewReader(bytes.NewReader(buf), contentType)
	if err != nil {
		return string(buf), nil
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
