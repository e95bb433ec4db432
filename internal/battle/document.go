package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Document is the probe surface the engine needs from the automated browser.
// Implementations own navigation and retries; the engine only borrows it for
// the duration of a session.
type Document interface {
	Exists(ctx context.Context, marker string, timeout time.Duration, requireVisible bool) (bool, error)
	ReadText(ctx context.Context, marker string) (string, error)
	// SampleBattleState reads turn and honors in one round trip.
	SampleBattleState(ctx context.Context) (SampledState, error)
	// Click activates the element. Implementations retry with backoff.
	Click(ctx context.Context, marker string) error
	// Reload navigates to the current location and waits for minimal load
	// readiness.
	Reload(ctx context.Context) error
}

// SampledState is one on-demand read of the HUD. Honors is nil when the
// encounter does not track honors.
type SampledState struct {
	Turn   int
	Honors *int
}

// ErrNavigationInterrupted is returned by a Document when the page was torn
// down mid-probe. It is benign and logged at debug level.
var ErrNavigationInterrupted = errors.New("navigation interrupted")

// safeDocument turns every probe failure into a neutral default. Probe errors
// never leave the engine; actions (click, reload) still report theirs.
type safeDocument struct {
	doc    Document
	logger *slog.Logger
}

func (s safeDocument) absorb(op, marker string, err error) {
	if errors.Is(err, ErrNavigationInterrupted) || errors.Is(err, context.Canceled) {
		s.logger.Debug("Probe interrupted by navigation", slog.String("op", op), slog.String("marker", marker))
		return
	}
	s.logger.Debug("Probe failed", slog.String("op", op), slog.String("marker", marker), slog.Any("error", err))
}

func (s safeDocument) recoverPanic(op, marker string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic in %s: %v", op, r)
		s.logger.Warn("Recovered panic from document probe", slog.String("op", op), slog.String("marker", marker), slog.Any("panic", r))
	}
}

func (s safeDocument) Exists(ctx context.Context, marker string, timeout time.Duration, requireVisible bool) bool {
	if marker == "" {
		return false
	}
	found, err := func() (found bool, err error) {
		defer s.recoverPanic("exists", marker, &err)
		return s.doc.Exists(ctx, marker, timeout, requireVisible)
	}()
	if err != nil {
		s.absorb("exists", marker, err)
		return false
	}
	return found
}

// AnyExists probes every marker with a zero timeout and reports the first hit.
func (s safeDocument) AnyExists(ctx context.Context, markers []string) bool {
	for _, m := range markers {
		if s.Exists(ctx, m, 0, false) {
			return true
		}
	}
	return false
}

func (s safeDocument) ReadText(ctx context.Context, marker string) string {
	text, err := func() (text string, err error) {
		defer s.recoverPanic("readText", marker, &err)
		return s.doc.ReadText(ctx, marker)
	}()
	if err != nil {
		s.absorb("readText", marker, err)
		return ""
	}
	return text
}

func (s safeDocument) Sample(ctx context.Context) SampledState {
	st, err := func() (st SampledState, err error) {
		defer s.recoverPanic("sample", "", &err)
		return s.doc.SampleBattleState(ctx)
	}()
	if err != nil {
		s.absorb("sample", "", err)
		return SampledState{}
	}
	return st
}

func (s safeDocument) Click(ctx context.Context, marker string) (err error) {
	defer s.recoverPanic("click", marker, &err)
	return s.doc.Click(ctx, marker)
}

func (s safeDocument) Reload(ctx context.Context) (err error) {
	defer s.recoverPanic("reload", "", &err)
	if err = s.doc.Reload(ctx); err != nil {
		s.logger.Warn("Reload failed", slog.Any("error", err))
	}
	return err
}
