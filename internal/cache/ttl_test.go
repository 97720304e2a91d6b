package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/billingportal/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int](clk)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Hour)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry expires at its deadline")
	assert.Equal(t, 1, c.Len())

	clk.Advance(time.Hour)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[int, string](nil)
	c.Set(1, "x", time.Minute)
	c.Delete(1)
	_, ok := c.Get(1)
	assert.False(t, ok)
}
