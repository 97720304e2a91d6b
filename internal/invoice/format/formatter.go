package format

import (
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	DefaultDateLayout = "Jan 2, 2006"
	DefaultCurrency   = money.USD

	// Blank is rendered for absent dates.
	Blank = "-"
)

// Formatter renders invoice values for display.
//
// Formatter is PURE: no side effects and fully deterministic for a given layout and currency.
type Formatter struct {
	DateLayout string
	Currency   string
}

func New(dateLayout, currency string) Formatter {
	if strings.TrimSpace(dateLayout) == "" {
		dateLayout = DefaultDateLayout
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if money.GetCurrency(currency) == nil {
		currency = DefaultCurrency
	}
	return Formatter{DateLayout: dateLayout, Currency: currency}
}

// Date renders a calendar date such as "Jan 5, 2024".
func (f Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return Blank
	}
	return t.Format(f.layout())
}

// DatePtr renders an optional date.
func (f Formatter) DatePtr(t *time.Time) string {
	if t == nil {
		return Blank
	}
	return f.Date(*t)
}

// Amount renders a decimal currency amount with two fraction digits ("$1,234.50").
func (f Formatter) Amount(amount decimal.Decimal) string {
	return f.Cents(ToCents(amount))
}

// Cents renders an integer minor-unit amount.
func (f Formatter) Cents(cents int64) string {
	return money.New(cents, f.currency()).Display()
}

// InvoiceLabel renders the human identifier of an invoice ("#42").
func InvoiceLabel(id int64) string {
	return "#" + strconv.FormatInt(id, 10)
}

// ToCents converts a major-unit amount to minor units, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (f Formatter) layout() string {
	if f.DateLayout == "" {
		return DefaultDateLayout
	}
	return f.DateLayout
}

func (f Formatter) currency() string {
	if f.Currency == "" {
		return DefaultCurrency
	}
	return f.Currency
}
