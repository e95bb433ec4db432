package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vietdungdev/raidbot/internal/battle"
	"github.com/vietdungdev/raidbot/internal/config"
)

const (
	pollInterval = 100 * time.Millisecond
	clickTimeout = 3 * time.Second
	clickRetries = 3
	readTimeout  = time.Second
)

// hudScript returns the outer HTML of every HUD root in one round trip.
const hudScript = `(sels) => sels.map((s) => {
	const el = document.querySelector(s);
	return el ? el.outerHTML : "";
}).join("")`

var _ battle.Document = (*Page)(nil)

// Page adapts a rod page to the document probe used by the battle engine.
type Page struct {
	page    *rod.Page
	markers config.Markers
	logger  *slog.Logger
}

func NewPage(page *rod.Page, markers config.Markers, logger *slog.Logger) *Page {
	return &Page{page: page, markers: markers, logger: logger}
}

// Exists polls for marker until it is found (and visible, when asked) or the
// timeout elapses. A zero timeout probes once.
func (p *Page) Exists(ctx context.Context, marker string, timeout time.Duration, requireVisible bool) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		found, err := p.probe(ctx, marker, requireVisible)
		if err != nil || found {
			return found, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (p *Page) probe(ctx context.Context, marker string, requireVisible bool) (bool, error) {
	has, el, err := p.page.Context(ctx).Has(marker)
	if err != nil {
		return false, wrapNavigation(err)
	}
	if !has || !requireVisible {
		return has, nil
	}
	visible, err := el.Visible()
	if err != nil {
		return false, wrapNavigation(err)
	}
	return visible, nil
}

func (p *Page) ReadText(ctx context.Context, marker string) (string, error) {
	el, err := p.page.Context(ctx).Timeout(readTimeout).Element(marker)
	if err != nil {
		return "", wrapNavigation(err)
	}
	text, err := el.Text()
	if err != nil {
		return "", wrapNavigation(err)
	}
	return strings.TrimSpace(text), nil
}

func (p *Page) SampleBattleState(ctx context.Context) (battle.SampledState, error) {
	res, err := p.page.Context(ctx).Eval(hudScript, p.markers.HUDRoots)
	if err != nil {
		return battle.SampledState{}, wrapNavigation(err)
	}
	return ParseBattleHUD(res.Value.Str(), p.markers)
}

// Click retries with exponential backoff; the control may be re-rendered
// between lookup and click.
func (p *Page) Click(ctx context.Context, marker string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		el, err := p.page.Context(ctx).Timeout(clickTimeout).Element(marker)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, el.Click(proto.InputMouseButtonLeft, 1)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(clickRetries))
	if err != nil {
		return fmt.Errorf("click %q: %w", marker, wrapNavigation(err))
	}
	return nil
}

// Reload reloads the current location and waits for DOMContentLoaded.
func (p *Page) Reload(ctx context.Context) error {
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	wait()
	return nil
}

// Navigate opens url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", sanitizeURL(url), err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for %s: %w", sanitizeURL(url), err)
	}
	return nil
}

var navigationMessages = []string{
	"Execution context was destroyed",
	"Cannot find context with specified id",
	"Inspected target navigated or closed",
	"Node with given id does not belong to the document",
}

// IsNavigationInterrupted reports whether err comes from the page being torn
// down by a navigation while a probe was in flight.
func IsNavigationInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, battle.ErrNavigationInterrupted) {
		return true
	}
	var nav *rod.NavigationError
	if errors.As(err, &nav) {
		return true
	}
	msg := err.Error()
	for _, m := range navigationMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapNavigation(err error) error {
	if err == nil || errors.Is(err, battle.ErrNavigationInterrupted) || !IsNavigationInterrupted(err) {
		return err
	}
	return fmt.Errorf("%w: %w", battle.ErrNavigationInterrupted, err)
}
