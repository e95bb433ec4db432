package config

import "time"

// Timings collects every delay and threshold the battle engine uses.
type Timings struct {
	// TickInterval is the fixed pause at the end of each reconciliation tick.
	// A waiting per-turn action is never delayed longer than this.
	TickInterval time.Duration
	// ReloadSettle is waited after a reload issued on a terminal signal, so the
	// result screen request is fired before the session returns.
	ReloadSettle time.Duration
	// ConclusionSettle is waited after the network reported the conclusion
	// page, long enough for the client to commit the reward state.
	ConclusionSettle time.Duration
	// StallThreshold is the hands-off idle window without any network signal.
	StallThreshold time.Duration
	// TurnQuietWindow gates the watchdogs: they only run once the turn has
	// been unchanged for longer than this.
	TurnQuietWindow time.Duration
	// GoalCheckInterval is the minimum spacing of sampler calls made purely
	// to re-check the honor target.
	GoalCheckInterval time.Duration
	// EndStateProbeInterval is the minimum spacing of the secondary
	// end-marker batch probe.
	EndStateProbeInterval time.Duration
	// StuckMissLimit is the number of consecutive ticks without any
	// in-progress control before the UI is considered stuck.
	StuckMissLimit int
	// ControlWaitTimeout bounds the wait for the engagement control.
	ControlWaitTimeout time.Duration
	// ActivationDelayMin/Max randomize the pause before the hands-off click,
	// event handlers on the control attach a little after it renders.
	ActivationDelayMin time.Duration
	ActivationDelayMax time.Duration
	// ActionDelayMin/Max randomize the pause before a per-turn click.
	ActionDelayMin time.Duration
	ActionDelayMax time.Duration
	// ActionAcceptTimeout bounds the wait for the per-turn controls to go
	// inactive after a click.
	ActionAcceptTimeout time.Duration
	// ActionGrace is waited between an accepted per-turn action and the
	// animation-skip reload.
	ActionGrace time.Duration
	// MaxBattle is the wall-clock budget of one session.
	MaxBattle time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		TickInterval:          200 * time.Millisecond,
		ReloadSettle:          500 * time.Millisecond,
		ConclusionSettle:      800 * time.Millisecond,
		StallThreshold:        12 * time.Second,
		TurnQuietWindow:       time.Second,
		GoalCheckInterval:     3 * time.Second,
		EndStateProbeInterval: time.Second,
		StuckMissLimit:        4,
		ControlWaitTimeout:    5 * time.Second,
		ActivationDelayMin:    150 * time.Millisecond,
		ActivationDelayMax:    250 * time.Millisecond,
		ActionDelayMin:        50 * time.Millisecond,
		ActionDelayMax:        100 * time.Millisecond,
		ActionAcceptTimeout:   time.Second,
		ActionGrace:           150 * time.Millisecond,
		MaxBattle:             15 * time.Minute,
	}
}

// Timings derives the engine timings from the battle options.
func (b BattleCfg) Timings() Timings {
	t := DefaultTimings()
	if b.FastRefresh {
		t.ReloadSettle = 200 * time.Millisecond
		t.ConclusionSettle = 400 * time.Millisecond
	}
	if b.StallThresholdMs > 0 {
		t.StallThreshold = time.Duration(b.StallThresholdMs) * time.Millisecond
	}
	if b.MaxBattleMinutes > 0 {
		t.MaxBattle = time.Duration(b.MaxBattleMinutes) * time.Minute
	}
	return t
}
