package battle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrategy(h *harness, mode Mode) (Strategy, *ProgressRecord) {
	progress := newTestProgress(h.clock)
	return newStrategy(mode, strategyDeps{
		doc:      safeDocument{doc: h.doc, logger: discardLogger()},
		markers:  h.markers,
		timings:  h.timings,
		clock:    h.clock,
		progress: progress,
		logger:   discardLogger(),
	}), progress
}

func TestHandsOffAnchorsStallClockAtClick(t *testing.T) {
	h := newHarness(t)
	s, progress := newTestStrategy(h, ModeHandsOff)
	start := h.clock.Now()

	eng, err := s.Engage(context.Background())
	require.NoError(t, err)

	assert.True(t, eng.Activated)
	assert.Equal(t, start.Add(h.timings.ActivationDelayMin), progress.Snapshot().LastActivity)
	assert.Equal(t, 1, h.doc.clickCount(h.markers.AutoButton))
}

func TestHandsOffDismissesBlockingPopupAndRetries(t *testing.T) {
	h := newHarness(t)
	h.doc = newFakeDoc(h.markers.BlockingPopup)
	h.doc.onReload = func(int) {
		h.doc.set(h.markers.BlockingPopup, false)
		h.doc.set(h.markers.AutoButton, true)
	}
	s, _ := newTestStrategy(h, ModeHandsOff)

	eng, err := s.Engage(context.Background())
	require.NoError(t, err)

	assert.True(t, eng.Activated)
	assert.Equal(t, 1, h.doc.clickCount(h.markers.PopupDismiss))
	assert.Equal(t, 1, h.doc.readCount(h.markers.BlockingPopup), "popup text is logged before dismissal")
	assert.Equal(t, 1, h.doc.reloadCount())
}

func TestHandsOffKeepsBenignPopup(t *testing.T) {
	h := newHarness(t)
	h.doc = newFakeDoc(h.markers.BlockingPopup, h.markers.AttackButton)
	s, _ := newTestStrategy(h, ModeHandsOff)

	eng, err := s.Engage(context.Background())
	require.NoError(t, err)

	assert.False(t, eng.Activated)
	assert.Zero(t, h.doc.clickCount(h.markers.PopupDismiss))
	assert.Equal(t, 1, h.doc.reloadCount())
}

func TestHandsOffReportsLostWithoutClicking(t *testing.T) {
	h := newHarness(t)
	h.doc = newFakeDoc(h.markers.WipePopup)
	s, _ := newTestStrategy(h, ModeHandsOff)

	eng, err := s.Engage(context.Background())
	require.NoError(t, err)

	assert.True(t, eng.Lost)
	assert.False(t, eng.Activated)
	assert.Zero(t, h.doc.reloadCount())
}

func TestPerTurnWaitsForAcceptanceThenReloads(t *testing.T) {
	h := newHarness(t)
	h.doc = newFakeDoc(h.markers.AttackButton, h.markers.CancelButton)
	h.doc.onClick = func(string) { h.doc.set(h.markers.AttackButton, false) }
	s, _ := newTestStrategy(h, ModePerTurn)
	start := h.clock.Now()

	eng, err := s.Engage(context.Background())
	require.NoError(t, err)

	assert.True(t, eng.Activated)
	assert.Equal(t, 1, h.doc.clickCount(h.markers.AttackButton))
	assert.Equal(t, 1, h.doc.reloadCount())
	// The cancel control never went away: the full acceptance window was
	// spent before the grace delay.
	elapsed := h.clock.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, h.timings.ActionDelayMin+h.timings.ActionAcceptTimeout+h.timings.ActionGrace)
}

func TestPerTurnWithoutControl(t *testing.T) {
	h := newHarness(t)
	h.doc = newFakeDoc()
	s, _ := newTestStrategy(h, ModePerTurn)

	eng, err := s.Engage(context.Background())
	require.NoError(t, err)
	assert.False(t, eng.Activated)
	assert.Zero(t, h.doc.reloadCount())
}
