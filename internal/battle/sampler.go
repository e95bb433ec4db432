package battle

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Sampler is the pull side of the reconciliation: an on-demand read of the HUD.
// It never fails; an unreadable document yields a zero turn and no honors.
type Sampler struct {
	doc    safeDocument
	goal   *rate.Limiter
	logger *slog.Logger
}

// NewSampler builds a sampler whose goal checks are spaced at least
// goalInterval apart.
func NewSampler(doc safeDocument, goalInterval time.Duration, logger *slog.Logger) *Sampler {
	return &Sampler{
		doc:    doc,
		goal:   rate.NewLimiter(rate.Every(goalInterval), 1),
		logger: logger,
	}
}

// Sample reads the state without throttling. Used for terminal confirmation
// and for the per-tick turn fallback.
func (s *Sampler) Sample(ctx context.Context) SampledState {
	st := s.doc.Sample(ctx)
	if st.Turn < 0 {
		st.Turn = 0
	}
	return st
}

// SampleForGoal reads the state only if the goal-check throttle allows it at
// now. The second return value is false when the call was throttled.
func (s *Sampler) SampleForGoal(ctx context.Context, now time.Time) (SampledState, bool) {
	if !s.goal.AllowN(now, 1) {
		return SampledState{}, false
	}
	return s.Sample(ctx), true
}
