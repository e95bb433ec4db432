package battle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietdungdev/raidbot/internal/config"
	"github.com/vietdungdev/raidbot/internal/packet"
	"github.com/vietdungdev/raidbot/internal/utils"
)

const pollInterval = 100 * time.Millisecond

type Options struct {
	HonorTarget int
	TrackHonors bool
	Timings     config.Timings
	Markers     config.Markers
	Clock       utils.Clock
	Logger      *slog.Logger
	// OnHalt is called when the whole automation run has to stop, currently
	// only when the game session was invalidated.
	OnHalt func(reason string)
}

// Engine runs battle sessions against a borrowed document and event source.
type Engine struct {
	doc        Document
	src        packet.Source
	classifier *packet.Classifier
	opts       Options
}

func NewEngine(doc Document, src packet.Source, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timings == (config.Timings{}) {
		opts.Timings = config.DefaultTimings()
	}
	if opts.Markers.AutoButton == "" {
		opts.Markers = config.DefaultMarkers()
	}
	if opts.HonorTarget > 0 {
		opts.TrackHonors = true
	}
	return &Engine{
		doc:        doc,
		src:        src,
		classifier: packet.NewClassifier(opts.Logger),
		opts:       opts,
	}
}

// Run drives one session until a terminal state. It returns ErrBattleLoadFailure
// when the battle never became observable and ErrBattleTimeout when the
// session budget elapsed. A stop request or a cancelled ctx yields a partial
// result with a nil error.
func (e *Engine) Run(ctx context.Context, sess *Session) (Result, error) {
	clk := e.opts.Clock
	t := e.opts.Timings
	logger := e.opts.Logger.With(slog.String("session", sess.ID), slog.String("mode", sess.Mode.String()))

	maxWait := sess.MaxWait
	if maxWait <= 0 {
		maxWait = t.MaxBattle
	}
	sess.StartTime = clk.Now()

	bus := packet.NewBus()
	progress := NewProgressRecord(logger, clk.Now, t.StallThreshold)
	unsubscribe := bus.Subscribe(progress.Apply)
	defer unsubscribe()
	detach := e.classifier.Attach(e.src, bus)
	defer detach()

	doc := safeDocument{doc: e.doc, logger: logger}
	strategy := newStrategy(sess.Mode, strategyDeps{
		doc:      doc,
		markers:  e.opts.Markers,
		timings:  t,
		clock:    clk,
		progress: progress,
		logger:   logger,
	})

	l := &loop{
		sess:        sess,
		timings:     t,
		markers:     e.opts.Markers,
		clock:       clk,
		logger:      logger,
		doc:         doc,
		progress:    progress,
		honors:      NewHonorProgress(e.opts.HonorTarget),
		trackHonors: e.opts.TrackHonors,
		sampler:     NewSampler(doc, t.GoalCheckInterval, logger),
		strategy:    strategy,
		recovery: &Recovery{
			doc:      doc,
			markers:  e.opts.Markers,
			strategy: strategy,
			session:  sess,
			halt:     e.opts.OnHalt,
			logger:   logger,
		},
		endState:     rate.NewLimiter(rate.Every(t.EndStateProbeInterval), 1),
		actedTurn:    -1,
		lastSkipTurn: -1,
	}

	logger.Info("Battle started", slog.Duration("maxWait", maxWait), slog.Int("honorTarget", e.opts.HonorTarget))
	res, err := l.run(ctx, maxWait)
	logger.Info("Battle finished",
		slog.String("outcome", res.Outcome.String()),
		slog.Int("turns", res.Turns),
		slog.Int("honors", res.Honors),
		slog.Float64("seconds", res.DurationSeconds))
	return res, err
}

// loop is the per-session reconciliation state. Nothing in it outlives Run.
type loop struct {
	sess        *Session
	timings     config.Timings
	markers     config.Markers
	clock       utils.Clock
	logger      *slog.Logger
	doc         safeDocument
	progress    *ProgressRecord
	honors      *HonorProgress
	trackHonors bool
	sampler     *Sampler
	strategy    Strategy
	recovery    *Recovery
	endState    *rate.Limiter

	observedTurn   int
	lastTurnChange time.Time
	actedTurn      int
	lastSkipTurn   int
	stuckMisses    int
}

func (l *loop) run(ctx context.Context, maxWait time.Duration) (Result, error) {
	if res, done, err := l.engage(ctx); done {
		return res, err
	}

	deadline := l.sess.StartTime.Add(maxWait)
	for l.clock.Now().Before(deadline) {
		if res, done := l.tick(ctx); done {
			return res, nil
		}
		if err := l.clock.Sleep(ctx, l.timings.TickInterval); err != nil {
			return l.result(OutcomeAborted, l.observedTurn), nil
		}
	}

	l.logger.Error("Battle timed out", slog.Int("turn", l.observedTurn))
	return l.result(OutcomeTimeout, l.observedTurn), fmt.Errorf("%w after %s", ErrBattleTimeout, maxWait)
}

// engage moves the session from loading to engaged.
func (l *loop) engage(ctx context.Context) (Result, bool, error) {
	if l.sess.Stopped() || ctx.Err() != nil {
		return l.result(OutcomeAborted, 0), true, nil
	}

	eng, err := l.strategy.Engage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return l.result(OutcomeAborted, 0), true, nil
		}
		l.logger.Warn("Engagement failed", slog.Any("error", err))
	}
	l.lastTurnChange = l.clock.Now()

	switch {
	case eng.Lost:
		return l.result(OutcomeDefeat, 1), true, nil
	case eng.Activated:
		if l.sess.Mode == ModePerTurn {
			l.actedTurn = 0
			l.progress.ConsumeAttackResult()
		}
		return Result{}, false, nil
	}

	if v := l.recovery.Assess(ctx); v.Over {
		return l.verdictResult(v), true, nil
	}
	// An encounter closed before its control rendered is conclusive, not a
	// load failure.
	if res, done := l.probeEndState(ctx); done {
		return res, true, nil
	}
	if l.progress.Snapshot().SawActivity {
		l.logger.Warn("Battle controls not found, following network events only")
		return Result{}, false, nil
	}
	return l.result(OutcomeUnknown, 0), true, ErrBattleLoadFailure
}

// tick evaluates every check once, in priority order. Later checks rely on
// earlier ones not having ended the session.
func (l *loop) tick(ctx context.Context) (Result, bool) {
	if l.sess.Stopped() || ctx.Err() != nil {
		l.logger.Info("Battle stopped", slog.Int("turn", l.observedTurn))
		return l.result(OutcomeAborted, l.observedTurn), true
	}
	snap := l.progress.Snapshot()

	if l.sess.Mode == ModePerTurn && !snap.Ended() && l.actedTurn != l.observedTurn &&
		l.doc.Exists(ctx, l.markers.AttackButton, 0, true) {
		if _, err := l.strategy.Engage(ctx); err != nil {
			l.logger.Debug("Turn action failed", slog.Any("error", err))
		}
		l.actedTurn = l.observedTurn
		// The action already reloaded past its animation.
		l.progress.ConsumeAttackResult()
		l.lastSkipTurn = l.observedTurn
		return Result{}, false
	}

	if snap.BossDied || snap.PartyWiped {
		outcome := snap.TerminalOutcome()
		l.logger.Info("Network reported battle end", slog.String("outcome", outcome.String()))
		l.reloadAndSettle(ctx, l.timings.ReloadSettle)
		return l.result(outcome, max(l.observedTurn, 1)), true
	}

	networkAdvanced := false
	if snap.NetworkTurn > l.observedTurn {
		l.setTurn(snap.NetworkTurn, "network")
		networkAdvanced = true
		if l.trackHonors && l.applySample(l.sampler.Sample(ctx)) {
			return l.goalReached(), true
		}
	}

	if snap.BattleConcluded {
		l.logger.Info("Network reported battle conclusion")
		_ = l.clock.Sleep(ctx, l.timings.ConclusionSettle)
		return l.result(OutcomeVictory, max(l.observedTurn+1, 1)), true
	}

	if !networkAdvanced && l.applySample(l.sampler.Sample(ctx)) {
		return l.goalReached(), true
	}

	now := l.clock.Now()
	if now.Sub(l.lastTurnChange) > l.timings.TurnQuietWindow {
		if l.trackHonors && l.honors.Target() > 0 {
			if st, ok := l.sampler.SampleForGoal(ctx, now); ok && l.applySample(st) {
				return l.goalReached(), true
			}
		}
		if l.sess.Mode == ModeHandsOff && !l.sess.Stopped() && l.progress.Stalled(now) {
			if res, done := l.recoverStall(ctx); done {
				return res, true
			}
		}
	}

	if l.doc.Exists(ctx, l.markers.ResultScreen, 0, false) {
		l.logger.Info("Result screen reached")
		return l.result(OutcomeVictory, max(l.observedTurn, 1)), true
	}
	if l.endState.AllowN(l.clock.Now(), 1) {
		if res, done := l.probeEndState(ctx); done {
			return res, true
		}
	}

	if l.progress.ConsumeAttackResult() && l.observedTurn != l.lastSkipTurn {
		l.lastSkipTurn = l.observedTurn
		l.logger.Debug("Reloading to skip attack animation", slog.Int("turn", l.observedTurn))
		if res, done := l.reloadAndRecover(ctx); done {
			return res, true
		}
		return Result{}, false
	}

	if l.doc.AnyExists(ctx, l.markers.InProgress) {
		l.stuckMisses = 0
		return Result{}, false
	}
	l.stuckMisses++
	if l.stuckMisses >= l.timings.StuckMissLimit {
		l.stuckMisses = 0
		l.logger.Warn("Battle controls missing, reloading", slog.Int("misses", l.timings.StuckMissLimit))
		if res, done := l.reloadAndRecover(ctx); done {
			return res, true
		}
	}
	return Result{}, false
}

func (l *loop) recoverStall(ctx context.Context) (Result, bool) {
	l.logger.Warn("Battle stalled, reloading and re-engaging", slog.Int("turn", l.observedTurn))
	_ = l.doc.Reload(ctx)
	l.progress.Touch(l.clock.Now())

	eng, err := l.strategy.Engage(ctx)
	if err != nil {
		l.logger.Debug("Re-engagement after stall failed", slog.Any("error", err))
	}
	if eng.Lost {
		return l.result(OutcomeDefeat, max(l.observedTurn, 1)), true
	}
	return Result{}, false
}

// probeEndState looks for the secondary end markers, each with its own exit.
func (l *loop) probeEndState(ctx context.Context) (Result, bool) {
	turns := max(l.observedTurn, 1)
	switch {
	case l.doc.Exists(ctx, l.markers.EmptyResult, 0, false):
		l.logger.Info("Empty result screen")
		return l.result(OutcomeEnded, turns), true
	case l.doc.Exists(ctx, l.markers.RematchFailPopup, 0, false):
		l.logger.Info("Rematch failed")
		l.reloadAndSettle(ctx, l.timings.ReloadSettle)
		return l.result(OutcomeEnded, turns), true
	case l.doc.Exists(ctx, l.markers.WipePopup, 0, false):
		// The network classifier may have logged the same wipe already.
		l.logger.Info("Wipe popup detected")
		l.reloadAndSettle(ctx, l.timings.ReloadSettle)
		return l.result(OutcomeDefeat, turns), true
	case l.doc.Exists(ctx, l.markers.RaidEndedPopup, 0, false):
		l.logger.Info("Raid already ended")
		if err := l.doc.Click(ctx, l.markers.PopupDismiss); err != nil {
			l.logger.Debug("Could not dismiss popup", slog.Any("error", err))
		}
		_ = l.clock.Sleep(ctx, l.timings.ReloadSettle)
		res := l.result(OutcomeEnded, 0)
		res.RaidEnded = true
		return res, true
	}
	return Result{}, false
}

// reloadAndRecover reloads, resamples and lets the recovery coordinator
// decide whether the encounter is still running.
func (l *loop) reloadAndRecover(ctx context.Context) (Result, bool) {
	_ = l.doc.Reload(ctx)
	if l.applySample(l.sampler.Sample(ctx)) {
		return l.goalReached(), true
	}
	v := l.recovery.Resume(ctx, recoveryContext(l.sess.Mode, l.progress.Snapshot()))
	if v.Over {
		return l.verdictResult(v), true
	}
	return Result{}, false
}

func (l *loop) reloadAndSettle(ctx context.Context, settle time.Duration) {
	_ = l.doc.Reload(ctx)
	_ = l.clock.Sleep(ctx, settle)
}

// applySample folds a sampled state in and reports whether the honor goal was
// reached by it.
func (l *loop) applySample(st SampledState) bool {
	if st.Turn > l.observedTurn {
		l.setTurn(st.Turn, "document")
	}
	if !l.trackHonors || st.Honors == nil {
		return false
	}
	if delta := l.honors.Update(*st.Honors); delta != 0 {
		l.logger.Info("Honors updated",
			slog.Int("honors", l.honors.Current()),
			slog.Int("delta", delta),
			slog.Int("target", l.honors.Target()))
	}
	return l.honors.Reached()
}

func (l *loop) setTurn(turn int, source string) {
	if turn <= l.observedTurn {
		return
	}
	l.logger.Info("Turn advanced", slog.Int("turn", turn), slog.String("source", source))
	l.observedTurn = turn
	l.lastTurnChange = l.clock.Now()
}

func (l *loop) goalReached() Result {
	l.logger.Info("Honor target reached", slog.Int("honors", l.honors.Current()), slog.Int("target", l.honors.Target()))
	return l.result(OutcomeGoalReached, max(l.observedTurn, 1))
}

func (l *loop) verdictResult(v Verdict) Result {
	turns := max(l.observedTurn, 1)
	if v.SessionInvalidated {
		turns = l.observedTurn
	}
	res := l.result(v.Outcome, turns)
	res.SessionInvalidated = v.SessionInvalidated
	return res
}

func (l *loop) result(o Outcome, turns int) Result {
	return Result{
		Outcome:         o,
		DurationSeconds: roundSeconds(l.clock.Now().Sub(l.sess.StartTime)),
		Turns:           turns,
		Honors:          l.honors.Current(),
		HonorReached:    l.honors.Fired(),
	}
}
