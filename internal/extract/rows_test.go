package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const searchResultPage = `<html><body>
<table id="search-result" class="table table-bordered table-striped dataTable">
<thead><tr><th>№</th><th>Объявление</th><th>Кол-во</th><th>Сумма</th><th>Способ</th><th>Статус</th></tr></thead>
<tbody>
<tr>
  <td><strong>123-ЗЦП1</strong></td>
  <td><a href="/ru/announce/index/555">Закуп бумаги</a><br><small>Заказчик: ГУ Акимат района</small></td>
  <td class="text-center">5</td>
  <td><strong>150 000.00</strong></td>
  <td>Запрос ценовых предложений</td>
  <td>Опубликован</td>
</tr>
<tr>
  <td>Итого</td>
  <td>нет данных</td>
  <td>—</td>
</tr>
<tr>
  <td><strong>124-ЗЦП2</strong></td>
  <td><a href="https://goszakup.gov.kz/ru/subpriceoffer/index/556/1">Услуги уборки</a></td>
  <td align="center">2000000</td>
  <td>75 500.25</td>
  <td>Из одного источника</td>
  <td>Завершен</td>
</tr>
</tbody>
</table>
</body></html>`

func TestRows_SearchResultTable(t *testing.T) {
	t.Parallel()

	recs := Rows(searchResultPage)
	require.Len(t, recs, 2, "row without lot id and links is skipped")

	first := recs[0]
	assert.Equal(t, "123-ЗЦП1", first.LotID)
	assert.Equal(t, "Закуп бумаги", first.Announcement)
	assert.Equal(t, "Закуп бумаги", first.Subject)
	assert.Equal(t, "https://goszakup.gov.kz/ru/announce/index/555", first.SubjectLink)
	assert.Equal(t, "ГУ Акимат района", first.Customer)
	assert.Equal(t, "5", first.Quantity)
	assert.Equal(t, "150000.00", first.Amount)
	assert.Equal(t, "Запрос ценовых предложений", first.PurchaseType)
	assert.Equal(t, "Опубликован", first.Status)

	second := recs[1]
	assert.Equal(t, "124-ЗЦП2", second.LotID)
	assert.Equal(t, "Услуги уборки", second.Subject)
	assert.Equal(t, "Услуги уборки", second.Announcement)
	assert.Equal(t, "https://goszakup.gov.kz/ru/subpriceoffer/index/556/1", second.SubjectLink)
	assert.Equal(t, notSpecified, second.Customer)
	assert.Equal(t, "1", second.Quantity, "quantities above the boundary are ignored")
	assert.Equal(t, "75500.25", second.Amount)
	assert.Equal(t, unknown, second.PurchaseType)
	assert.Equal(t, unknown, second.Status)
}

func TestRows_KeywordFallbackTable(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<table><tr><td>меню</td><td>a</td><td>b</td></tr></table>
<table>
  <tr><td>77</td><td><a href="/ru/announce/index/77">Закуп мебели</a></td><td>лот 1</td></tr>
</table>
</body></html>`

	recs := Rows(html)
	require.Len(t, recs, 1)
	assert.Equal(t, "77", recs[0].LotID)
	assert.Equal(t, "Закуп мебели", recs[0].Subject)
	assert.Equal(t, "0", recs[0].Amount)
}

func TestRows_NoTable(t *testing.T) {
	t.Parallel()

	recs := Rows(`<html><body><p>Ничего не найдено</p></body></html>`)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestRows_SkipsShortRows(t *testing.T) {
	t.Parallel()

	html := `<table id="search-result">
<tr><td><strong>1-ЗЦП1</strong></td><td><a href="/ru/announce/index/1">A</a></td></tr>
<tr><td><strong>2-ЗЦП1</strong></td><td><a href="/ru/announce/index/2">B</a></td><td>x</td></tr>
</table>`

	recs := Rows(html)
	require.Len(t, recs, 1)
	assert.Equal(t, "2-ЗЦП1", recs[0].LotID)
}

func TestRows_LotIDFromPlainCell(t *testing.T) {
	t.Parallel()

	html := `<table class="table-bordered table">
<tr><td>Лот 9001</td><td><a href="/ru/announce/index/9">Заголовок</a></td><td>z</td></tr>
</table>`

	recs := Rows(html)
	require.Len(t, recs, 1)
	assert.Equal(t, "9001", recs[0].LotID)
}

func TestRows_MalformedRowsBetweenGoodRows(t *testing.T) {
	t.Parallel()

	html := `<table id="search-result">
<tr><td><strong>1-ЗЦП1</strong></td><td><a href="/ru/announce/index/1">Первый</a></td><td>x</td></tr>
<tr><td><strong>2-ЗЦП1</strong></td><td><a>без ссылки</a></td><td>y</td></tr>
<tr><td><strong></strong></td><td><a href="/ru/announce/index/">пусто</a><td><span>Заказчик:</span></tr>
<tr><td><strong>3-ЗЦП1</strong></td><td><a href="/ru/announce/index/3">Третий</a></td><td>z</td></tr>
</table>`

	recs := Rows(html)
	require.Len(t, recs, 2)
	assert.Equal(t, "1-ЗЦП1", recs[0].LotID)
	assert.Equal(t, "3-ЗЦП1", recs[1].LotID)
	assert.Equal(t, "https://goszakup.gov.kz/ru/announce/index/3", recs[1].SubjectLink)
}

func TestRows_PanickingRowDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	// Fail hard while handling the "Итого" row, which has no lot id.
	core = zapcore.RegisterHooks(core, func(e zapcore.Entry) error {
		if e.Message == "extract: skipping row without lot id or title" {
			panic("broken row")
		}
		return nil
	})
	ex := New(WithLogger(zap.New(core)))

	recs := ex.Rows(searchResultPage)

	require.Len(t, recs, 2)
	assert.Equal(t, "123-ЗЦП1", recs[0].LotID)
	assert.Equal(t, "124-ЗЦП2", recs[1].LotID)
	assert.Equal(t, 1, logs.FilterMessage("extract: recovered from panic").Len())
	assert.Equal(t, 1, logs.FilterMessage("extract: row failed").Len())
}

func TestGuard_RecoversPanic(t *testing.T) {
	t.Parallel()

	ex := New(WithLogger(zap.NewNop()))
	assert.False(t, ex.guard("step", func() { panic("boom") }))
	assert.True(t, ex.guard("step", func() {}))
}
