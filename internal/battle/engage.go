package battle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietdungdev/raidbot/internal/config"
	"github.com/vietdungdev/raidbot/internal/utils"
)

// Engagement is what a strategy managed to do.
type Engagement struct {
	// Activated is true when the control was clicked.
	Activated bool
	// Lost is true when the party was already wiped and nothing was clicked.
	Lost bool
}

// Strategy activates the battle controls for one mode.
type Strategy interface {
	// Engage activates the control for the current page state.
	Engage(ctx context.Context) (Engagement, error)
	// OnReloadResume runs after a reload left the encounter in progress.
	OnReloadResume(ctx context.Context) error
}

type strategyDeps struct {
	doc      safeDocument
	markers  config.Markers
	timings  config.Timings
	clock    utils.Clock
	progress *ProgressRecord
	logger   *slog.Logger
}

func newStrategy(mode Mode, d strategyDeps) Strategy {
	if mode == ModePerTurn {
		return &PerTurn{d}
	}
	return &HandsOff{d}
}

// HandsOff clicks the auto-battle control once; the client then plays every
// turn by itself.
type HandsOff struct {
	strategyDeps
}

func (h *HandsOff) Engage(ctx context.Context) (Engagement, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if h.doc.Exists(ctx, h.markers.AutoButton, h.timings.ControlWaitTimeout, true) {
			return h.activate(ctx)
		}
		if err := ctx.Err(); err != nil {
			return Engagement{}, err
		}

		// A dialog on top of a running encounter is harmless; it only blocks
		// when the attack control is gone as well.
		if h.doc.Exists(ctx, h.markers.BlockingPopup, 0, true) && !h.doc.Exists(ctx, h.markers.AttackButton, 0, false) {
			h.logger.Info("Dismissing blocking popup", slog.String("text", h.doc.ReadText(ctx, h.markers.BlockingPopup)))
			if err := h.doc.Click(ctx, h.markers.PopupDismiss); err != nil {
				h.logger.Debug("Could not dismiss popup", slog.Any("error", err))
			}
		}
		if h.doc.Exists(ctx, h.markers.WipePopup, 0, true) {
			h.logger.Info("Party already wiped, not activating")
			return Engagement{Lost: true}, nil
		}
		if attempt == 0 {
			h.logger.Debug("Auto control did not appear, reloading")
			_ = h.doc.Reload(ctx)
		}
	}
	return Engagement{}, nil
}

func (h *HandsOff) activate(ctx context.Context) (Engagement, error) {
	delay := utils.RandomDurationMs(int(h.timings.ActivationDelayMin.Milliseconds()), int(h.timings.ActivationDelayMax.Milliseconds()))
	if err := h.clock.Sleep(ctx, delay); err != nil {
		return Engagement{}, err
	}
	if err := h.doc.Click(ctx, h.markers.AutoButton); err != nil {
		return Engagement{}, fmt.Errorf("clicking auto control: %w", err)
	}
	h.progress.Touch(h.clock.Now())
	h.logger.Debug("Auto battle activated")
	return Engagement{Activated: true}, nil
}

func (h *HandsOff) OnReloadResume(ctx context.Context) error {
	_, err := h.Engage(ctx)
	return err
}

// PerTurn performs one attack per turn and reloads to skip its animation.
type PerTurn struct {
	strategyDeps
}

func (p *PerTurn) Engage(ctx context.Context) (Engagement, error) {
	if !p.doc.Exists(ctx, p.markers.AttackButton, p.timings.ControlWaitTimeout, true) {
		return Engagement{}, ctx.Err()
	}

	delay := utils.RandomDurationMs(int(p.timings.ActionDelayMin.Milliseconds()), int(p.timings.ActionDelayMax.Milliseconds()))
	if err := p.clock.Sleep(ctx, delay); err != nil {
		return Engagement{}, err
	}
	if err := p.doc.Click(ctx, p.markers.AttackButton); err != nil {
		return Engagement{}, fmt.Errorf("clicking attack control: %w", err)
	}

	if !p.waitAccepted(ctx) {
		p.logger.Debug("Attack not confirmed within the acceptance window")
	}
	if err := p.clock.Sleep(ctx, p.timings.ActionGrace); err != nil {
		return Engagement{}, err
	}
	if err := p.doc.Reload(ctx); err != nil {
		p.logger.Debug("Animation reload failed", slog.Any("error", err))
	}
	return Engagement{Activated: true}, nil
}

// waitAccepted polls until both the attack and the cancel control are gone,
// which is how the client shows that an action was accepted.
func (p *PerTurn) waitAccepted(ctx context.Context) bool {
	deadline := p.clock.Now().Add(p.timings.ActionAcceptTimeout)
	for {
		if !p.doc.Exists(ctx, p.markers.AttackButton, 0, true) && !p.doc.Exists(ctx, p.markers.CancelButton, 0, true) {
			return true
		}
		if !p.clock.Now().Before(deadline) {
			return false
		}
		if p.clock.Sleep(ctx, pollInterval) != nil {
			return false
		}
	}
}

// OnReloadResume is a no-op: the loop clicks the attack control on the next
// tick it becomes visible.
func (p *PerTurn) OnReloadResume(context.Context) error {
	return nil
}
