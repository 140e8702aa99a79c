package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/model"
)

// detailTableSelectors are tried most specific first.
var detailTableSelectors = []string{
	"table.table-bordered",
	"table.table-hover",
	"table.table-striped",
	`table[class*="table"]`,
	".panel table",
	".panel-body table",
}

const detailLinkSelector = `a[href*="subpriceoffer"], a[href*="announce"]`

var (
	urlLotIDRe  = regexp.MustCompile(`/(\d+-[\p{L}\p{N}_]+)(?:/|$)`)
	cellLotIDRe = regexp.MustCompile(`^\d+-[\p{L}\p{N}_]+\d*$`)
	cellMoneyRe = regexp.MustCompile(`^[\d\s\x{00A0},]+\.\d{2}$`)
)

// Single extracts a record from a lot detail page. When the page carries no
// label/value tables it falls back to scanning list tables row by row, which
// may yield several records. It never fails; an empty slice means nothing
// was recoverable.
func (e *Extractor) Single(html, sourceURL string) []model.Record {
	doc := e.parse(html)
	if doc == nil {
		return nil
	}

	var out []model.Record
	e.guard("detail", func() {
		if rec, ok := e.detail(doc, sourceURL); ok {
			out = append(out, rec)
		}
	})
	if len(out) > 0 {
		return out
	}

	e.guard("fallback", func() {
		out = e.fallbackRows(doc, sourceURL)
	})
	return out
}

func (e *Extractor) detail(doc *goquery.Document, sourceURL string) (model.Record, bool) {
	found := fields{}

	for _, selector := range detailTableSelectors {
		doc.Find(selector).Each(func(_ int, table *goquery.Selection) {
			table.Find("tr").Each(func(_ int, row *goquery.Selection) {
				th := row.Find("th").First()
				td := row.Find("td").First()
				if th.Length() == 0 || td.Length() == 0 {
					return
				}
				key := strings.ToLower(text(th))
				rule, ok := matchLabel(key)
				if !ok {
					return
				}
				found.setOnce(rule.field, rule.value(text(td)))
			})
		})
	}

	doc.Find(detailLinkSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if _, ok := found[fieldSubject]; ok {
			return false
		}
		href, _ := a.Attr("href")
		label := text(a)
		if href == "" || label == "" {
			return true
		}
		found.setOnce(fieldSubject, label)
		found.setOnce(fieldSubjectLink, e.absolutize(href))
		return false
	})

	if _, ok := found[fieldLotID]; !ok {
		if m := urlLotIDRe.FindStringSubmatch(sourceURL); m != nil {
			found.setOnce(fieldLotID, m[1])
		}
	}

	if found[fieldLotID] == "" && found[fieldSubject] == "" &&
		found[fieldCustomer] == "" && found[fieldAmount] == "" {
		return model.Record{}, false
	}

	customer := customerMissing
	if c := found[fieldCustomer]; c != "" {
		customer = customerPrefix + c
	}

	announcement := firstNonEmpty(
		found[fieldAnnouncementInfo],
		found[fieldDescription],
		announcementPrefix+firstNonEmpty(found[fieldSubject], notSpecified),
	)

	rec := model.Record{
		LotID:        firstNonEmpty(found[fieldLotID], model.SyntheticLotID(e.now())),
		Announcement: announcement,
		Customer:     customer,
		Subject:      firstNonEmpty(found[fieldSubject], found[fieldSubjectType], subjectMissing),
		SubjectLink:  firstNonEmpty(found[fieldSubjectLink], sourceURL),
		Quantity:     firstNonEmpty(found[fieldQuantity], defaultQuantity),
		Amount:       firstNonEmpty(found[fieldAmount], found[fieldUnitPrice], defaultAmount),
		PurchaseType: firstNonEmpty(found[fieldPurchaseType], defaultPurchaseType),
		Status:       firstNonEmpty(found[fieldStatus], defaultStatus),
	}
	e.log.Debug("extract: detail page record", zap.String("lot_id", rec.LotID))
	return rec, true
}

// fallbackRows treats every body row with three or more cells as a lot
// listing and classifies cells by shape.
func (e *Extractor) fallbackRows(doc *goquery.Document, sourceURL string) []model.Record {
	var out []model.Record
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
			e.guard("fallback row", func() {
				if rec, ok := e.fallbackRow(row, sourceURL); ok {
					out = append(out, rec)
				}
			})
		})
	})
	return out
}

func (e *Extractor) fallbackRow(row *goquery.Selection, sourceURL string) (model.Record, bool) {
	cells := row.Find("td")
	if cells.Length() < 3 {
		return model.Record{}, false
	}

	found := fields{}
	cells.Each(func(_ int, cell *goquery.Selection) {
		t := text(cell)
		links := cell.Find("a")
		n := utf8.RuneCountInString(t)

		switch {
		case cellLotIDRe.MatchString(t):
			found[fieldLotID] = t
		case cellMoneyRe.MatchString(t):
			found[fieldAmount] = t
		case links.Length() > 0 && found[fieldSubject] == "":
			found[fieldSubject] = t
			if href, ok := links.First().Attr("href"); ok && href != "" {
				found[fieldSubjectLink] = e.absolutize(href)
			}
		case strings.Contains(t, "Заказчик:") || n > 50:
			found[fieldCustomer] = t
		case n < 50 && n > 3:
			if found[fieldStatus] == "" && (strings.Contains(t, "Опубликован") || strings.Contains(t, "состоялась")) {
				found[fieldStatus] = t
			} else if found[fieldPurchaseType] == "" && strings.Contains(t, "предложени") {
				found[fieldPurchaseType] = t
			}
		}
	})

	if found[fieldLotID] == "" || (found[fieldSubject] == "" && found[fieldAmount] == "") {
		return model.Record{}, false
	}

	return model.Record{
		LotID:        found[fieldLotID],
		Announcement: announcementPrefix + firstNonEmpty(found[fieldSubject], notSpecified),
		Customer:     firstNonEmpty(found[fieldCustomer], customerMissing),
		Subject:      firstNonEmpty(found[fieldSubject], subjectMissing),
		SubjectLink:  firstNonEmpty(found[fieldSubjectLink], sourceURL),
		Quantity:     defaultQuantity,
		Amount:       firstNonEmpty(found[fieldAmount], defaultAmount),
		PurchaseType: firstNonEmpty(found[fieldPurchaseType], defaultPurchaseType),
		Status:       firstNonEmpty(found[fieldStatus], defaultStatus),
	}, true
}
