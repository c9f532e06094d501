package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayDoublesPerAttempt(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Hour, AttemptCap: 10}

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
}

func TestDelayClampedToMax(t *testing.T) {
	p := Policy{Base: 5 * time.Second, Max: 5 * time.Minute, AttemptCap: 20}

	assert.Equal(t, 5*time.Minute, p.Delay(7))
	assert.Equal(t, 5*time.Minute, p.Delay(19))
}

func TestDelayAttemptCap(t *testing.T) {
	p := Policy{Base: time.Millisecond, Max: time.Hour, AttemptCap: 3}

	// attempts past the cap reuse the capped exponent
	assert.Equal(t, p.Delay(3), p.Delay(4))
	assert.Equal(t, p.Delay(3), p.Delay(100))
}

func TestDelayNegativeAttempt(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, p.Delay(0), p.Delay(-5))
}

func TestDelayNeverDecreases(t *testing.T) {
	p := DefaultPolicy()
	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}

func TestSleepHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleepZeroReturnsImmediately(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))
}
