package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceUnmarshalRecordsPresentKeys(t *testing.T) {
	payload := `{"id":7,"subscriptionId":3,"amount":12.5,"dateFrom":"2024-01-01","dateTo":"2024-01-31","description":"January","createdAt":"2024-02-01T09:30:00.123456","updatedAt":null}`

	var inv Invoice
	require.NoError(t, json.Unmarshal([]byte(payload), &inv))

	assert.Equal(t, int64(7), inv.ID)
	assert.Equal(t, int64(3), inv.SubscriptionID)
	assert.True(t, decimal.RequireFromString("12.5").Equal(inv.Amount))
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), inv.DateTo)
	assert.Equal(t, 2024, inv.CreatedAt.Year())
	assert.Nil(t, inv.UpdatedAt)

	assert.True(t, inv.Has(FieldUpdatedAt), "null value still counts as present")
	assert.False(t, inv.Has(FieldPDFURL))
	assert.Len(t, inv.Fields(), 8)
}

func TestInvoiceUnmarshalRejectsBadDate(t *testing.T) {
	var inv Invoice
	err := json.Unmarshal([]byte(`{"id":1,"dateFrom":"yesterday"}`), &inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, raw := range []string{"2024-03-05", "2024-03-05T10:00:00", "2024-03-05T10:00:00Z", "2024-03-05T10:00:00.5"} {
		ts, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, time.March, ts.Month(), raw)
	}
}
