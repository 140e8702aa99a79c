// Package extract turns goszakup.gov.kz pages into procurement records.
//
// Extraction is heuristic and bound to the portal's markup: selector lists,
// label keywords and patterns below are a fixed contract with that site.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/model"
)

// DefaultOrigin is the portal origin relative links are resolved against.
const DefaultOrigin = "https://goszakup.gov.kz"

// Placeholders used when a field cannot be recovered.
const (
	notSpecified          = "Не указано"
	unknown               = "Неизвестно"
	customerMissing       = "Заказчик не указан"
	subjectMissing        = "Предмет не указан"
	defaultPurchaseType   = "Запрос ценовых предложений"
	defaultStatus         = "Опубликован"
	customerPrefix        = "Заказчик: "
	announcementPrefix    = "Закупка: "
	defaultQuantity       = "1"
	defaultAmount         = "0"
	quantityUpperBoundary = 1_000_000
)

// Extractor holds the settings shared by both extraction modes.
type Extractor struct {
	origin *url.URL
	now    func() time.Time
	log    *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOrigin sets the origin used to absolutize relative links.
func WithOrigin(origin string) Option {
	return func(e *Extractor) {
		if u, err := url.Parse(origin); err == nil && u.Scheme != "" && u.Host != "" {
			e.origin = u
		}
	}
}

// WithClock overrides the clock used for synthetic lot ids.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// WithLogger sets the logger. Defaults to zap.L() at construction time.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		e.log = l
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	origin, _ := url.Parse(DefaultOrigin)
	e := &Extractor{
		origin: origin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.L()
	}
	e.log = e.log.With(zap.String("component", "extract"))
	return e
}

// Single extracts a record from one detail page using the default settings.
func Single(html, sourceURL string) []model.Record {
	return New().Single(html, sourceURL)
}

// Rows extracts one record per search-result row using the default settings.
func Rows(html string) []model.Record {
	return New().Rows(html)
}

func (e *Extractor) parse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.log.Warn("extract: parse html", zap.Error(err))
		return nil
	}
	return doc
}

// absolutize resolves href against the portal origin. Absolute http(s)
// links are returned as-is.
func (e *Extractor) absolutize(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return strings.TrimSuffix(e.origin.String(), "/") + href
	}
	return e.origin.ResolveReference(ref).String()
}

// guard runs fn and converts a panic into a logged failure.
func (e *Extractor) guard(what string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("extract: recovered from panic",
				zap.String("step", what),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()
	fn()
	return true
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// text returns the trimmed text content of a selection with inner runs of
// whitespace collapsed.
func text(sel *goquery.Selection) string {
	return innerWhitespace.ReplaceAllString(strings.TrimFunc(sel.Text(), unicode.IsSpace), " ")
}

// stripSpaces removes every whitespace rune, including non-breaking spaces.
func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// firstToken returns the first whitespace-separated token of s.
func firstToken(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
