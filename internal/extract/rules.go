package extract

import "strings"

// field names the logical slot a label rule fills. Some slots only feed
// defaults for other fields (unit price, description).
type field string

const (
	fieldLotID            field = "lot_id"
	fieldCustomer         field = "customer"
	fieldSubject          field = "subject"
	fieldSubjectType      field = "subject_type"
	fieldQuantity         field = "quantity"
	fieldAmount           field = "amount"
	fieldUnitPrice        field = "unit_price"
	fieldStatus           field = "status"
	fieldPurchaseType     field = "purchase_type"
	fieldDescription      field = "description"
	fieldAnnouncementInfo field = "announcement_info"
	fieldUnit             field = "unit"
	fieldSubjectLink      field = "subject_link"
)

// labelRule maps a normalized header label to a field.
type labelRule struct {
	field field
	match func(key string) bool
	value func(raw string) string
}

func containsAll(subs ...string) func(string) bool {
	return func(key string) bool {
		for _, s := range subs {
			if !strings.Contains(key, s) {
				return false
			}
		}
		return true
	}
}

func containsAny(subs ...string) func(string) bool {
	return func(key string) bool {
		for _, s := range subs {
			if strings.Contains(key, s) {
				return true
			}
		}
		return false
	}
}

func both(a, b func(string) bool) func(string) bool {
	return func(key string) bool { return a(key) && b(key) }
}

func identity(s string) string { return s }

// labelRules is evaluated top to bottom; the first rule whose predicate
// accepts the label decides the field for that row.
var labelRules = []labelRule{
	{fieldLotID, containsAll("лот", "№"), firstToken},
	{fieldCustomer, containsAny("заказчик", "организатор"), identity},
	{fieldSubject, both(containsAll("наименование"), containsAny("тру", "товар", "услуг")), identity},
	{fieldSubjectType, containsAll("предмет", "закуп"), identity},
	{fieldQuantity, containsAll("количество"), identity},
	{fieldAmount, both(containsAll("сумма"), containsAny("закуп", "планир", "общ")), identity},
	{fieldUnitPrice, containsAll("цена", "един"), identity},
	{fieldStatus, containsAll("статус"), identity},
	{fieldPurchaseType, containsAll("способ", "закуп"), identity},
	{fieldDescription, containsAny("характеристик", "описание"), identity},
	{fieldAnnouncementInfo, containsAll("объявлени"), identity},
	{fieldUnit, containsAll("единица", "измерени"), identity},
}

// matchLabel returns the first rule accepting key.
func matchLabel(key string) (labelRule, bool) {
	for _, r := range labelRules {
		if r.match(key) {
			return r, true
		}
	}
	return labelRule{}, false
}

// fields collects values; the first value stored for a field sticks.
type fields map[field]string

func (f fields) setOnce(k field, v string) bool {
	if v == "" {
		return false
	}
	if _, ok := f[k]; ok {
		return false
	}
	f[k] = v
	return true
}
