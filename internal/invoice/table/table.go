// Package table derives the invoice table shown to users.
package table

import (
	"strconv"

	"github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/smallbiznis/billingportal/internal/invoice/format"
)

// Column is one rendered column, backed by one invoice key.
type Column struct {
	Key   domain.Field
	Label string
}

// IsAction reports whether the column renders the per-row download control.
func (c Column) IsAction() bool {
	return c.Key == domain.FieldPDFURL
}

// Schema is the preferred column order.
var Schema = []Column{
	{Key: domain.FieldID, Label: "Invoice ID"},
	{Key: domain.FieldAmount, Label: "Amount"},
	{Key: domain.FieldCreatedAt, Label: "Created On"},
	{Key: domain.FieldDateFrom, Label: "From"},
	{Key: domain.FieldDateTo, Label: "To"},
	{Key: domain.FieldDescription, Label: "Description"},
	{Key: domain.FieldUpdatedAt, Label: "Updated On"},
	{Key: domain.FieldPDFURL, Label: "Action"},
}

// Cell is a formatted value. Action cells carry no text; they bind to Row.InvoiceID.
type Cell struct {
	Column Column
	Text   string
}

type Row struct {
	InvoiceID int64
	Cells     []Cell
}

type Table struct {
	Columns []Column
	Rows    []Row
}

func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// DeriveColumns returns the Schema columns whose key is present on the first
// invoice. Keys present only on later invoices never add a column.
func DeriveColumns(invoices []domain.Invoice) []Column {
	if len(invoices) == 0 {
		return nil
	}
	sample := invoices[0]
	columns := make([]Column, 0, len(Schema))
	for _, col := range Schema {
		if sample.Has(col.Key) {
			columns = append(columns, col)
		}
	}
	return columns
}

// Build renders every invoice against the derived column set, preserving order.
func Build(invoices []domain.Invoice, f format.Formatter) Table {
	columns := DeriveColumns(invoices)
	rows := make([]Row, 0, len(invoices))
	for _, inv := range invoices {
		cells := make([]Cell, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, Cell{Column: col, Text: cellText(inv, col.Key, f)})
		}
		rows = append(rows, Row{InvoiceID: inv.ID, Cells: cells})
	}
	return Table{Columns: columns, Rows: rows}
}

func cellText(inv domain.Invoice, key domain.Field, f format.Formatter) string {
	switch key {
	case domain.FieldID:
		return format.InvoiceLabel(inv.ID)
	case domain.FieldSubscriptionID:
		return strconv.FormatInt(inv.SubscriptionID, 10)
	case domain.FieldAmount:
		return f.Amount(inv.Amount)
	case domain.FieldCreatedAt:
		return f.Date(inv.CreatedAt)
	case domain.FieldDateFrom:
		return f.Date(inv.DateFrom)
	case domain.FieldDateTo:
		return f.Date(inv.DateTo)
	case domain.FieldDescription:
		return inv.Description
	case domain.FieldUpdatedAt:
		return f.DatePtr(inv.UpdatedAt)
	default:
		return ""
	}
}
