package health

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultStallThreshold is the hands-off idle window before a stall is declared.
const DefaultStallThreshold = 12 * time.Second

// StallExceeded reports whether more than threshold has passed since the last
// activity signal. A zero lastActivity never stalls: the clock has not been
// anchored yet.
func StallExceeded(now, lastActivity time.Time, threshold time.Duration) bool {
	if lastActivity.IsZero() || threshold <= 0 {
		return false
	}
	return now.Sub(lastActivity) > threshold
}

// StallMonitor tracks the activity anchor of a hands-off engagement.
// The anchor is the moment the control was clicked, not the moment the loop
// started waiting for it, so slow control rendering never eats into the
// activity window.
type StallMonitor struct {
	mu           sync.Mutex
	threshold    time.Duration
	lastActivity time.Time
	logger       *slog.Logger
}

func NewStallMonitor(logger *slog.Logger, threshold time.Duration) *StallMonitor {
	if threshold <= 0 {
		threshold = DefaultStallThreshold
	}
	return &StallMonitor{threshold: threshold, logger: logger}
}

// Anchor resets the activity clock to t.
func (m *StallMonitor) Anchor(t time.Time) {
	m.mu.Lock()
	m.lastActivity = t
	m.mu.Unlock()
}

// Touch records an activity signal. Older timestamps are ignored so a late
// delivery can't move the clock backwards.
func (m *StallMonitor) Touch(t time.Time) {
	m.mu.Lock()
	if t.After(m.lastActivity) {
		m.lastActivity = t
	}
	m.mu.Unlock()
}

func (m *StallMonitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

func (m *StallMonitor) Threshold() time.Duration {
	return m.threshold
}

// Stalled reports whether the activity window has been exceeded at now.
func (m *StallMonitor) Stalled(now time.Time) bool {
	last := m.LastActivity()
	if !StallExceeded(now, last, m.threshold) {
		return false
	}
	if m.logger != nil {
		m.logger.Warn("No battle activity within the stall window",
			slog.Duration("idle", now.Sub(last)),
			slog.Duration("threshold", m.threshold))
	}
	return true
}
