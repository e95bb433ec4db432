package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomDurationMsStaysInRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		d := RandomDurationMs(150, 250)
		require.GreaterOrEqual(t, d, 150*time.Millisecond)
		require.LessOrEqual(t, d, 250*time.Millisecond)
	}
	assert.Equal(t, 80*time.Millisecond, RandomDurationMs(80, 80))
}

func TestRandGammaDurationMsIsPositive(t *testing.T) {
	for i := 0; i < 200; i++ {
		assert.Positive(t, RandGammaDurationMs(1500, 3))
	}
	assert.Zero(t, RandGammaDurationMs(0, 3))
}

func TestSystemClockSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SystemClock{}.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
