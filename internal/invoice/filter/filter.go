// Package filter narrows an already-fetched invoice list by a free-text query.
package filter

import (
	"strconv"
	"strings"

	"github.com/smallbiznis/billingportal/internal/invoice/domain"
)

// Matches reports whether inv satisfies query. The description is compared
// case-insensitively; ids are compared against their decimal text.
func Matches(inv domain.Invoice, query string) bool {
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(inv.Description), strings.ToLower(query)) {
		return true
	}
	if strings.Contains(strconv.FormatInt(inv.SubscriptionID, 10), query) {
		return true
	}
	return strings.Contains(strconv.FormatInt(inv.ID, 10), query)
}

// Apply returns the invoices matching query in their original order.
// An empty query returns the input unchanged.
func Apply(invoices []domain.Invoice, query string) []domain.Invoice {
	if query == "" {
		return invoices
	}
	out := make([]domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if Matches(inv, query) {
			out = append(out, inv)
		}
	}
	return out
}

// State names the view to show for a list and query.
type State int

const (
	StateResults State = iota
	// StateNoInvoices means nothing was fetched at all.
	StateNoInvoices
	// StateNoMatches means invoices exist but none match the query.
	StateNoMatches
)

// View is the outcome of filtering a fetched list.
type View struct {
	Query    string
	Total    int
	Invoices []domain.Invoice
}

func NewView(all []domain.Invoice, query string) View {
	return View{Query: query, Total: len(all), Invoices: Apply(all, query)}
}

func (v View) State() State {
	switch {
	case v.Total == 0:
		return StateNoInvoices
	case len(v.Invoices) == 0:
		return StateNoMatches
	default:
		return StateResults
	}
}
