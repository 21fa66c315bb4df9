package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
	assert.GreaterOrEqual(t, clock.Since(before), time.Duration(0))
}

func TestMockClock_SetAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "a plain mock clock does not step")

	c.Advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.Since(start))

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestSteppingClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewSteppingClock(start, time.Second)

	first := c.Now()
	second := c.Now()
	assert.Equal(t, start, first)
	assert.Equal(t, time.Second, second.Sub(first))
	assert.Equal(t, 2*time.Second, c.Since(start))
}
