// Package domain contains the invoice records returned by the billing API.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names a JSON key of an invoice payload.
type Field string

const (
	FieldID             Field = "id"
	FieldSubscriptionID Field = "subscriptionId"
	FieldAmount         Field = "amount"
	FieldCreatedAt      Field = "createdAt"
	FieldDateFrom       Field = "dateFrom"
	FieldDateTo         Field = "dateTo"
	FieldDescription    Field = "description"
	FieldUpdatedAt      Field = "updatedAt"
	FieldPDFURL         Field = "pdfUrl"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Invoice is an immutable billing record for one period.
type Invoice struct {
	ID             int64
	SubscriptionID int64
	DateFrom       time.Time
	DateTo         time.Time
	Amount         decimal.Decimal
	Description    string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	PDFURL         string

	present map[Field]struct{}
}

type invoiceWire struct {
	ID             int64           `json:"id"`
	SubscriptionID int64           `json:"subscriptionId"`
	DateFrom       *string         `json:"dateFrom"`
	DateTo         *string         `json:"dateTo"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	CreatedAt      *string         `json:"createdAt"`
	UpdatedAt      *string         `json:"updatedAt"`
	PDFURL         string          `json:"pdfUrl"`
}

// Has reports whether the key was present in the decoded payload.
// A key sent with a null value counts as present.
func (i Invoice) Has(f Field) bool {
	_, ok := i.present[f]
	return ok
}

// Fields returns a copy of the present keys.
func (i Invoice) Fields() []Field {
	out := make([]Field, 0, len(i.present))
	for f := range i.present {
		out = append(out, f)
	}
	return out
}

func (i *Invoice) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	var wire invoiceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := Invoice{
		ID:             wire.ID,
		SubscriptionID: wire.SubscriptionID,
		Amount:         wire.Amount,
		Description:    wire.Description,
		PDFURL:         wire.PDFURL,
		present:        make(map[Field]struct{}, len(keys)),
	}
	for k := range keys {
		out.present[Field(k)] = struct{}{}
	}

	var err error
	if out.DateFrom, err = parseOptional(wire.DateFrom); err != nil {
		return fmt.Errorf("dateFrom: %w", err)
	}
	if out.DateTo, err = parseOptional(wire.DateTo); err != nil {
		return fmt.Errorf("dateTo: %w", err)
	}
	if out.CreatedAt, err = parseOptional(wire.CreatedAt); err != nil {
		return fmt.Errorf("createdAt: %w", err)
	}
	if wire.UpdatedAt != nil && strings.TrimSpace(*wire.UpdatedAt) != "" {
		updated, err := ParseTimestamp(*wire.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updatedAt: %w", err)
		}
		out.UpdatedAt = &updated
	}

	*i = out
	return nil
}

func (i Invoice) MarshalJSON() ([]byte, error) {
	wire := struct {
		ID             int64           `json:"id"`
		SubscriptionID int64           `json:"subscriptionId"`
		DateFrom       string          `json:"dateFrom,omitempty"`
		DateTo         string          `json:"dateTo,omitempty"`
		Amount         decimal.Decimal `json:"amount"`
		Description    string          `json:"description"`
		CreatedAt      string          `json:"createdAt,omitempty"`
		UpdatedAt      *string         `json:"updatedAt,omitempty"`
		PDFURL         string          `json:"pdfUrl,omitempty"`
	}{
		ID:             i.ID,
		SubscriptionID: i.SubscriptionID,
		DateFrom:       formatDate(i.DateFrom),
		DateTo:         formatDate(i.DateTo),
		Amount:         i.Amount,
		Description:    i.Description,
		CreatedAt:      formatTimestamp(i.CreatedAt),
		PDFURL:         i.PDFURL,
	}
	if i.UpdatedAt != nil {
		updated := formatTimestamp(*i.UpdatedAt)
		wire.UpdatedAt = &updated
	}
	return json.Marshal(wire)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp accepts calendar dates and local or zoned date-times.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

func parseOptional(raw *string) (time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return time.Time{}, nil
	}
	return ParseTimestamp(*raw)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02T15:04:05")
}
