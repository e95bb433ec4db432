package battle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSamplerGoalChecksAreThrottled(t *testing.T) {
	d := newFakeDoc()
	d.setHonors(100)
	s := NewSampler(safeDocument{doc: d, logger: discardLogger()}, 3*time.Second, discardLogger())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok := s.SampleForGoal(ctx, now)
	assert.True(t, ok)
	_, ok = s.SampleForGoal(ctx, now.Add(2999*time.Millisecond))
	assert.False(t, ok)
	st, ok := s.SampleForGoal(ctx, now.Add(3*time.Second+time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 100, *st.Honors)

	// Unthrottled reads are always served.
	s.Sample(ctx)
	s.Sample(ctx)
	assert.Equal(t, 4, d.samples)
}

func TestSamplerFailureIsNeutral(t *testing.T) {
	d := newFakeDoc()
	d.panics = true
	s := NewSampler(safeDocument{doc: d, logger: discardLogger()}, time.Second, discardLogger())

	st := s.Sample(context.Background())
	assert.Zero(t, st.Turn)
	assert.Nil(t, st.Honors)
}
