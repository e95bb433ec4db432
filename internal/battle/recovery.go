package battle

import (
	"context"
	"log/slog"

	"github.com/vietdungdev/raidbot/internal/config"
)

// RecoveryContext is the part of the progress state that decides whether the
// control is re-engaged after a reload.
type RecoveryContext struct {
	Mode            Mode
	BossDied        bool
	PartyWiped      bool
	BattleConcluded bool
}

func recoveryContext(mode Mode, s ProgressSnapshot) RecoveryContext {
	return RecoveryContext{
		Mode:            mode,
		BossDied:        s.BossDied,
		PartyWiped:      s.PartyWiped,
		BattleConcluded: s.BattleConcluded,
	}
}

func (rc RecoveryContext) terminal() bool {
	return rc.BossDied || rc.PartyWiped || rc.BattleConcluded
}

// Verdict is the recovery decision taken after a reload.
type Verdict struct {
	Over               bool
	Outcome            Outcome
	SessionInvalidated bool
	Reason             string
}

// Recovery classifies the page after a reload and either ends the encounter
// or resumes it.
type Recovery struct {
	doc      safeDocument
	markers  config.Markers
	strategy Strategy
	session  *Session
	// halt is called once the client lands on a login surface; the whole
	// automation run stops, not just this encounter.
	halt   func(reason string)
	logger *slog.Logger
}

// Assess reports whether the page shows the encounter as over.
func (r *Recovery) Assess(ctx context.Context) Verdict {
	switch {
	case r.doc.Exists(ctx, r.markers.LoginSurface, 0, false):
		r.logger.Error("Redirected to a login surface, stopping automation")
		r.session.Stop()
		if r.halt != nil {
			r.halt("session invalidated")
		}
		return Verdict{Over: true, Outcome: OutcomeAborted, SessionInvalidated: true, Reason: "login surface"}
	case r.doc.Exists(ctx, r.markers.ResultScreen, 0, false):
		return Verdict{Over: true, Outcome: OutcomeVictory, Reason: "result screen"}
	case r.doc.Exists(ctx, r.markers.CompletionModal, 0, false):
		return Verdict{Over: true, Outcome: OutcomeVictory, Reason: "completion modal"}
	case r.doc.Exists(ctx, r.markers.WipePopup, 0, false):
		return Verdict{Over: true, Outcome: OutcomeDefeat, Reason: "wipe popup"}
	}
	return Verdict{}
}

// Resume assesses the page and, when the encounter is still running,
// re-engages it through the strategy.
func (r *Recovery) Resume(ctx context.Context, rc RecoveryContext) Verdict {
	if v := r.Assess(ctx); v.Over {
		r.logger.Info("Encounter over after reload", slog.String("reason", v.Reason))
		return v
	}
	if rc.terminal() {
		// The next tick returns on the terminal flag.
		return Verdict{}
	}
	if r.doc.Exists(ctx, r.markers.WipeIndicator, 0, false) {
		r.logger.Info("Party wipe visible, not re-engaging")
		return Verdict{Over: true, Outcome: OutcomeDefeat, Reason: "wipe indicator"}
	}
	if err := r.strategy.OnReloadResume(ctx); err != nil {
		r.logger.Debug("Re-engagement failed", slog.String("mode", rc.Mode.String()), slog.Any("error", err))
	}
	return Verdict{}
}
