package format

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatterDate(t *testing.T) {
	f := New("", "")
	ts := time.Date(2024, time.January, 5, 13, 0, 0, 0, time.UTC)

	assert.Equal(t, "Jan 5, 2024", f.Date(ts))
	assert.Equal(t, Blank, f.Date(time.Time{}))
	assert.Equal(t, Blank, f.DatePtr(nil))
	assert.Equal(t, "2024-01-05", New("2006-01-02", "USD").Date(ts))
}

func TestFormatterAmount(t *testing.T) {
	f := New(DefaultDateLayout, "usd")

	cases := map[string]string{
		"1234.5":  "$1,234.50",
		"0":       "$0.00",
		"12.345":  "$12.35",
		"99.999":  "$100.00",
		"1000000": "$1,000,000.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, f.Amount(decimal.RequireFromString(in)), in)
	}
}

func TestFormatterUnknownCurrencyFallsBack(t *testing.T) {
	f := New("", "XYZ")
	assert.Equal(t, DefaultCurrency, f.Currency)
}

func TestToCentsRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, int64(1235), ToCents(decimal.RequireFromString("12.345")))
	assert.Equal(t, int64(1), ToCents(decimal.RequireFromString("0.005")))
	assert.Equal(t, int64(0), ToCents(decimal.RequireFromString("0.004")))
	assert.Equal(t, int64(-1235), ToCents(decimal.RequireFromString("-12.345")))
}

func TestInvoiceLabel(t *testing.T) {
	assert.Equal(t, "#42", InvoiceLabel(42))
}
