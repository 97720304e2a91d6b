package table

import (
	"encoding/json"
	"testing"

	"github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/smallbiznis/billingportal/internal/invoice/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, payload string) []domain.Invoice {
	t.Helper()
	var out []domain.Invoice
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	return out
}

func keys(columns []Column) []domain.Field {
	out := make([]domain.Field, 0, len(columns))
	for _, c := range columns {
		out = append(out, c.Key)
	}
	return out
}

func TestDeriveColumnsEmpty(t *testing.T) {
	assert.Empty(t, DeriveColumns(nil))

	tbl := Build(nil, format.New("", ""))
	assert.Empty(t, tbl.Columns)
	assert.True(t, tbl.Empty())
}

func TestDeriveColumnsFollowsPreferredOrder(t *testing.T) {
	invoices := decode(t, `[{"pdfUrl":"#","description":"d","dateTo":"2024-01-31","dateFrom":"2024-01-01","createdAt":"2024-02-01T00:00:00","amount":1,"id":1,"updatedAt":"2024-02-02T00:00:00","subscriptionId":9}]`)

	assert.Equal(t, []domain.Field{
		domain.FieldID,
		domain.FieldAmount,
		domain.FieldCreatedAt,
		domain.FieldDateFrom,
		domain.FieldDateTo,
		domain.FieldDescription,
		domain.FieldUpdatedAt,
		domain.FieldPDFURL,
	}, keys(DeriveColumns(invoices)))
}

func TestDeriveColumnsSkipsAbsentKeys(t *testing.T) {
	invoices := decode(t, `[{"id":1,"amount":10,"description":"Jan"}]`)

	assert.Equal(t, []domain.Field{domain.FieldID, domain.FieldAmount, domain.FieldDescription}, keys(DeriveColumns(invoices)))
}

func TestDeriveColumnsSamplesFirstElementOnly(t *testing.T) {
	invoices := decode(t, `[
		{"id":1,"amount":10,"description":"Jan"},
		{"id":2,"amount":20,"description":"Feb","updatedAt":"2024-03-01T00:00:00","pdfUrl":"https://x/2.pdf"}
	]`)

	columns := DeriveColumns(invoices)
	assert.Equal(t, []domain.Field{domain.FieldID, domain.FieldAmount, domain.FieldDescription}, keys(columns))

	tbl := Build(invoices, format.New("", ""))
	require.Len(t, tbl.Rows, 2)
	assert.Len(t, tbl.Rows[1].Cells, 3, "later rows never widen the table")
}

func TestBuildFormatsCells(t *testing.T) {
	invoices := decode(t, `[{"id":42,"amount":1234.5,"dateFrom":"2024-01-01","dateTo":"2024-01-31","description":"January","pdfUrl":"#"}]`)

	tbl := Build(invoices, format.New("", ""))
	require.Len(t, tbl.Rows, 1)
	row := tbl.Rows[0]
	assert.Equal(t, int64(42), row.InvoiceID)

	texts := map[domain.Field]string{}
	for _, c := range row.Cells {
		texts[c.Column.Key] = c.Text
	}
	assert.Equal(t, "#42", texts[domain.FieldID])
	assert.Equal(t, "$1,234.50", texts[domain.FieldAmount])
	assert.Equal(t, "Jan 1, 2024", texts[domain.FieldDateFrom])
	assert.Equal(t, "Jan 31, 2024", texts[domain.FieldDateTo])
	assert.Equal(t, "January", texts[domain.FieldDescription])
	assert.True(t, row.Cells[len(row.Cells)-1].Column.IsAction())
}

func TestBuildPreservesOrder(t *testing.T) {
	invoices := decode(t, `[{"id":3},{"id":1},{"id":2}]`)

	tbl := Build(invoices, format.New("", ""))
	ids := []int64{}
	for _, r := range tbl.Rows {
		ids = append(ids, r.InvoiceID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
}
