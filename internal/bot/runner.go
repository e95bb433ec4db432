package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietdungdev/raidbot/internal/battle"
	"github.com/vietdungdev/raidbot/internal/config"
	"github.com/vietdungdev/raidbot/internal/event"
	"github.com/vietdungdev/raidbot/internal/utils"
)

// idleShape controls the spread of the gap between two encounters.
const idleShape = 4

type BattleEngine interface {
	Run(ctx context.Context, sess *battle.Session) (battle.Result, error)
}

// EncounterProvider brings the page to the next encounter.
type EncounterProvider interface {
	Next(ctx context.Context) error
}

// Pump is a background producer that has to run for as long as the runner
// does, such as the network source feeding the classifier.
type Pump interface {
	Start(ctx context.Context) error
}

// Screenshotter captures the page for halt notifications.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

const haltScreenshotTimeout = 5 * time.Second

type Settings struct {
	Mode          battle.Mode
	MaxWait       time.Duration
	MaxEncounters int
	IdleBetween   time.Duration
}

func SettingsFromConfig(cfg *config.RaidbotCfg) (Settings, error) {
	mode, err := battle.ParseMode(cfg.Battle.Mode)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Mode:          mode,
		MaxWait:       cfg.Battle.Timings().MaxBattle,
		MaxEncounters: cfg.Runner.MaxEncounters,
		IdleBetween:   time.Duration(cfg.Runner.IdleBetweenMs) * time.Millisecond,
	}, nil
}

type Status struct {
	Running    bool          `json:"running"`
	Halted     string        `json:"halted,omitempty"`
	Encounters int           `json:"encounters"`
	Victories  int           `json:"victories"`
	Defeats    int           `json:"defeats"`
	Last       battle.Result `json:"last"`
	SessionID  string        `json:"sessionId,omitempty"`
}

// Runner plays one engine session per encounter until stopped, the encounter
// budget is spent, or a fatal condition halts the automation.
type Runner struct {
	engine   BattleEngine
	provider EncounterProvider
	pump     Pump
	settings Settings
	clock    utils.Clock
	logger   *slog.Logger
	screens  Screenshotter

	mu      sync.Mutex
	status  Status
	current *battle.Session
	stopped bool
}

func NewRunner(engine BattleEngine, provider EncounterProvider, pump Pump, settings Settings, clock utils.Clock, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Runner{
		engine:   engine,
		provider: provider,
		pump:     pump,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.pump != nil {
		g.Go(func() error {
			return r.pump.Start(ctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return r.loop(ctx)
	})
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context) error {
	r.setRunning(true)
	defer r.setRunning(false)

	for n := 0; r.settings.MaxEncounters == 0 || n < r.settings.MaxEncounters; n++ {
		if ctx.Err() != nil || r.isStopped() {
			return nil
		}

		if err := r.provider.Next(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("Could not reach the next encounter", slog.Any("error", err))
			if r.idle(ctx) != nil {
				return nil
			}
			continue
		}

		err := r.playOne(ctx)
		if err != nil {
			r.halt(err)
			return err
		}
		if r.isStopped() {
			return nil
		}
		if r.idle(ctx) != nil {
			return nil
		}
	}

	r.logger.Info("Encounter budget spent", slog.Int("encounters", r.settings.MaxEncounters))
	return nil
}

func (r *Runner) playOne(ctx context.Context) error {
	sess := battle.NewSession(r.settings.Mode, r.settings.MaxWait)
	r.mu.Lock()
	r.current = sess
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		sess.Stop()
	}

	event.Send(event.BattleStarted(event.Text(sess.ID, "Battle started"), sess.ID, sess.Mode.String()))
	res, err := r.engine.Run(ctx, sess)
	if err == nil && res.SessionInvalidated {
		err = battle.ErrSessionInvalidated
	}
	r.record(sess, res, err)

	reason := FinishReason(res, err)
	event.Send(event.BattleFinished(
		event.Text(sess.ID, fmt.Sprintf("Battle finished: %s", res.Outcome)),
		sess.ID, reason, res.Outcome.String(), res.Turns, res.Honors, res.DurationSeconds,
	))

	if err != nil && IsFatal(err) {
		return fmt.Errorf("battle %s: %w", sess.ID, err)
	}
	if err != nil {
		r.logger.Warn("Battle ended with an error", slog.Any("error", err))
	}
	return nil
}

func (r *Runner) idle(ctx context.Context) error {
	if r.settings.IdleBetween <= 0 {
		return ctx.Err()
	}
	d := utils.RandGammaDurationMs(float64(r.settings.IdleBetween.Milliseconds()), idleShape)
	return r.clock.Sleep(ctx, d)
}

// Stop ends the current session at its next tick and prevents new ones.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.current != nil {
		r.current.Stop()
	}
}

// Halt is handed to the engine: the game session is gone and nothing more can
// be played without an operator.
func (r *Runner) Halt(reason string) {
	r.logger.Error("Automation halted", slog.String("reason", reason))
	r.Stop()
}

// WithScreenshots attaches a page capture to the halt notification.
func (r *Runner) WithScreenshots(s Screenshotter) *Runner {
	r.screens = s
	return r
}

func (r *Runner) halt(err error) {
	r.logger.Error("Automation halted", slog.Any("error", err))
	r.mu.Lock()
	r.status.Halted = err.Error()
	r.mu.Unlock()

	base := event.Text("runner", err.Error())
	if png := r.capture(); png != nil {
		base = event.WithScreenshot("runner", err.Error(), png)
	}
	event.Send(event.AutomationHalted(base, haltReason(err)))
}

// capture runs on its own deadline: the run context is usually already
// cancelled by the time a halt is reported.
func (r *Runner) capture() []byte {
	if r.screens == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), haltScreenshotTimeout)
	defer cancel()
	png, err := r.screens.Screenshot(ctx)
	if err != nil {
		r.logger.Warn("Could not capture the page", slog.Any("error", err))
		return nil
	}
	return png
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Runner) record(sess *battle.Session, res battle.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Encounters++
	r.status.Last = res
	r.status.SessionID = sess.ID
	switch res.Outcome {
	case battle.OutcomeVictory, battle.OutcomeGoalReached:
		r.status.Victories++
	case battle.OutcomeDefeat:
		r.status.Defeats++
	}
	r.current = nil
}

func (r *Runner) setRunning(v bool) {
	r.mu.Lock()
	r.status.Running = v
	r.mu.Unlock()
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// IsFatal reports whether err must stop the whole automation run.
func IsFatal(err error) bool {
	return errors.Is(err, battle.ErrBattleLoadFailure) ||
		errors.Is(err, battle.ErrBattleTimeout) ||
		errors.Is(err, battle.ErrSessionInvalidated)
}

func FinishReason(res battle.Result, err error) event.FinishReason {
	switch {
	case errors.Is(err, battle.ErrBattleTimeout):
		return event.FinishedTimeout
	case err != nil:
		return event.FinishedError
	}
	switch res.Outcome {
	case battle.OutcomeVictory:
		return event.FinishedOK
	case battle.OutcomeDefeat:
		return event.FinishedDefeat
	case battle.OutcomeGoalReached:
		return event.FinishedGoal
	case battle.OutcomeEnded:
		return event.FinishedEnded
	case battle.OutcomeAborted:
		return event.FinishedAborted
	default:
		return event.FinishedError
	}
}

func haltReason(err error) string {
	switch {
	case errors.Is(err, battle.ErrSessionInvalidated):
		return "session invalidated"
	case errors.Is(err, battle.ErrBattleLoadFailure):
		return "battle failed to load"
	case errors.Is(err, battle.ErrBattleTimeout):
		return "battle timed out"
	default:
		return "error"
	}
}
