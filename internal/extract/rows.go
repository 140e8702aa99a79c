package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/model"
)

// resultTableSelectors locate the search-result table, most specific first.
var resultTableSelectors = []string{
	"#search-result",
	"table.table-bordered.table-striped.dataTable",
	"table.dataTable",
	`table[id*="search"]`,
	"table.table-bordered",
}

// resultTableKeywords identify a procurement table when no selector matches.
var resultTableKeywords = []string{"лот", "ЗЦП", "закуп"}

const (
	announceLinkSelector  = `a[href*="/announce/index/"]`
	subjectLinkSelector   = `a[href*="/subpriceoffer/index/"]`
	customerTextSelector  = "small, .small, span"
	centeredCellSelector  = `.text-center, [align="center"]`
	purchaseTypeMarker    = "Запрос ценовых предложений"
	publishedStatusMarker = "Опубликован"
)

var (
	rowLotIDRe      = regexp.MustCompile(`\d+(-ЗЦП\d+)?`)
	rowCustomerRe   = regexp.MustCompile(`Заказчик:\s*(.+?)(?:\n|<|$)`)
	rowQuantityRe   = regexp.MustCompile(`^\d+$`)
	strongMoneyRe   = regexp.MustCompile(`[\d\s\x{00A0}]+\.\d{2}$`)
	cellMoneyStrict = regexp.MustCompile(`^\d[\d\s\x{00A0}]*\.\d{2}$`)
)

// Rows extracts one record per row of a search-result table. Rows lacking a
// lot id or both an announcement and a subject are skipped; a row that
// panics during extraction is logged and skipped.
func (e *Extractor) Rows(html string) []model.Record {
	doc := e.parse(html)
	if doc == nil {
		return nil
	}

	table := e.findResultTable(doc)
	if table == nil {
		e.log.Warn("extract: no search-result table found")
		return []model.Record{}
	}

	rows := table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Find("td").Length() > 2
	})
	e.log.Debug("extract: candidate rows", zap.Int("rows", rows.Length()))

	out := []model.Record{}
	rows.Each(func(i int, row *goquery.Selection) {
		ok := e.guard("row", func() {
			rec, found := e.row(row)
			if !found {
				e.log.Debug("extract: skipping row without lot id or title", zap.Int("row", i+1))
				return
			}
			out = append(out, rec)
		})
		if !ok {
			e.log.Warn("extract: row failed", zap.Int("row", i+1))
		}
	})

	e.log.Debug("extract: rows extracted", zap.Int("records", len(out)))
	return out
}

func (e *Extractor) findResultTable(doc *goquery.Document) *goquery.Selection {
	for _, selector := range resultTableSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			e.log.Debug("extract: result table matched", zap.String("selector", selector))
			return sel
		}
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(i int, table *goquery.Selection) bool {
		hit := table.Find("td").FilterFunction(func(_ int, td *goquery.Selection) bool {
			t := td.Text()
			for _, kw := range resultTableKeywords {
				if strings.Contains(t, kw) {
					return true
				}
			}
			return false
		})
		if hit.Length() > 0 {
			e.log.Debug("extract: result table found by keyword", zap.Int("table", i))
			found = table
			return false
		}
		return true
	})
	return found
}

func (e *Extractor) row(row *goquery.Selection) (model.Record, bool) {
	cells := row.Find("td")
	if cells.Length() == 0 {
		return model.Record{}, false
	}

	lotID := rowLotID(cells)
	announcement, announcementLink := e.firstLink(cells, announceLinkSelector)
	subject, subjectLink := e.firstLink(cells, subjectLinkSelector)
	customer := rowCustomer(cells)
	quantity := rowQuantity(cells)
	amount := rowAmount(cells)
	purchaseType, status := rowTypeAndStatus(cells)

	if lotID == "" || (announcement == "" && subject == "") {
		return model.Record{}, false
	}

	return model.Record{
		LotID:        lotID,
		Announcement: firstNonEmpty(announcement, subject),
		Customer:     firstNonEmpty(customer, notSpecified),
		Subject:      firstNonEmpty(subject, announcement, notSpecified),
		SubjectLink:  firstNonEmpty(subjectLink, announcementLink),
		Quantity:     firstNonEmpty(quantity, defaultQuantity),
		Amount:       firstNonEmpty(amount, defaultAmount),
		PurchaseType: firstNonEmpty(purchaseType, unknown),
		Status:       firstNonEmpty(status, unknown),
	}, true
}

// rowLotID prefers a lot number in bold text and falls back to the first
// number found in any cell.
func rowLotID(cells *goquery.Selection) string {
	var lotID string
	cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		strong := text(cell.Find("strong"))
		if rowLotIDRe.MatchString(strong) {
			lotID = strong
			return false
		}
		if lotID == "" {
			lotID = rowLotIDRe.FindString(text(cell))
		}
		return true
	})
	return lotID
}

func (e *Extractor) firstLink(cells *goquery.Selection, selector string) (label, link string) {
	a := cells.Find(selector).First()
	if a.Length() == 0 {
		return "", ""
	}
	href, _ := a.Attr("href")
	return text(a), e.absolutize(href)
}

func rowCustomer(cells *goquery.Selection) string {
	var customer string
	cells.Find(customerTextSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		t := el.Text()
		if !strings.Contains(t, "Заказчик:") {
			return true
		}
		if m := rowCustomerRe.FindStringSubmatch(t); m != nil {
			customer = strings.TrimSpace(m[1])
			return false
		}
		return true
	})
	return customer
}

func rowQuantity(cells *goquery.Selection) string {
	var quantity string
	cells.Filter(centeredCellSelector).EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		t := text(cell)
		if !rowQuantityRe.MatchString(t) {
			return true
		}
		n, err := strconv.Atoi(t)
		if err != nil || n >= quantityUpperBoundary {
			return true
		}
		quantity = t
		return false
	})
	return quantity
}

func rowAmount(cells *goquery.Selection) string {
	var amount string
	cells.Find("strong").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		t := text(el)
		if strongMoneyRe.MatchString(t) {
			amount = stripSpaces(t)
			return false
		}
		return true
	})
	if amount != "" {
		return amount
	}

	cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		t := text(cell)
		if cellMoneyStrict.MatchString(t) {
			amount = stripSpaces(t)
			return false
		}
		return true
	})
	return amount
}

func rowTypeAndStatus(cells *goquery.Selection) (purchaseType, status string) {
	cells.Each(func(_ int, cell *goquery.Selection) {
		t := text(cell)
		if purchaseType == "" && strings.Contains(t, purchaseTypeMarker) {
			purchaseType = t
		}
		if status == "" && t == publishedStatusMarker {
			status = t
		}
	})
	return purchaseType, status
}
