package battle

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vietdungdev/raidbot/internal/config"
	"github.com/vietdungdev/raidbot/internal/packet"
)

const (
	startURL  = "https://game.example/rest/multiraid/start.json"
	attackURL = "https://game.example/rest/multiraid/normal_attack_result.json"
	resultURL = "https://game.example/resultmulti/content/index/1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	onTick func(n int, now time.Time)
	tick   time.Duration
	ticks  int
}

func newFakeClock(tick time.Duration) *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), tick: tick}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	hook := c.onTick
	isTick := d == c.tick
	if isTick {
		c.ticks++
	}
	n := c.ticks
	c.mu.Unlock()

	if isTick && hook != nil {
		hook(n, now)
	}
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(packet.RawMessage)
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[int]func(packet.RawMessage))}
}

func (s *fakeSource) Subscribe(handler func(packet.RawMessage)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.handlers[id] = handler
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *fakeSource) Emit(url, payload string) {
	s.mu.Lock()
	handlers := make([]func(packet.RawMessage), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(packet.RawMessage{URL: url, Payload: []byte(payload)})
	}
}

func (s *fakeSource) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// fakeDoc is a scriptable Document. Markers in present exist and are visible.
type fakeDoc struct {
	mu      sync.Mutex
	present map[string]bool
	state   SampledState
	err     error
	panics  bool

	clicks  map[string]int
	reads   map[string]int
	reloads int
	samples int

	onClick  func(marker string)
	onReload func(n int)
}

func newFakeDoc(present ...string) *fakeDoc {
	d := &fakeDoc{present: make(map[string]bool), clicks: make(map[string]int), reads: make(map[string]int)}
	for _, m := range present {
		d.present[m] = true
	}
	return d
}

func (d *fakeDoc) set(marker string, v bool) {
	d.mu.Lock()
	d.present[marker] = v
	d.mu.Unlock()
}

func (d *fakeDoc) setHonors(v int) {
	d.mu.Lock()
	d.state.Honors = &v
	d.mu.Unlock()
}

func (d *fakeDoc) setTurn(v int) {
	d.mu.Lock()
	d.state.Turn = v
	d.mu.Unlock()
}

func (d *fakeDoc) fail() error {
	if d.panics {
		panic("document detached")
	}
	return d.err
}

func (d *fakeDoc) Exists(_ context.Context, marker string, _ time.Duration, _ bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return false, err
	}
	return d.present[marker], nil
}

func (d *fakeDoc) ReadText(_ context.Context, marker string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads[marker]++
	if err := d.fail(); err != nil {
		return "", err
	}
	return marker, nil
}

func (d *fakeDoc) SampleBattleState(context.Context) (SampledState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples++
	if err := d.fail(); err != nil {
		return SampledState{}, err
	}
	return d.state, nil
}

func (d *fakeDoc) Click(_ context.Context, marker string) error {
	d.mu.Lock()
	d.clicks[marker]++
	err := d.err
	hook := d.onClick
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(marker)
	}
	return nil
}

func (d *fakeDoc) Reload(context.Context) error {
	d.mu.Lock()
	d.reloads++
	n := d.reloads
	err := d.err
	hook := d.onReload
	d.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return err
}

func (d *fakeDoc) clickCount(marker string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks[marker]
}

func (d *fakeDoc) readCount(marker string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[marker]
}

func (d *fakeDoc) reloadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads
}

type harness struct {
	t       *testing.T
	doc     *fakeDoc
	src     *fakeSource
	clock   *fakeClock
	markers config.Markers
	timings config.Timings
}

func testTimings() config.Timings {
	t := config.DefaultTimings()
	// Fixed delays keep the tick sleeps distinguishable in the fake clock.
	t.ActivationDelayMin = 150 * time.Millisecond
	t.ActivationDelayMax = 150 * time.Millisecond
	t.ActionDelayMin = 50 * time.Millisecond
	t.ActionDelayMax = 50 * time.Millisecond
	return t
}

// newHarness returns a page showing a running hands-off encounter.
func newHarness(t *testing.T) *harness {
	m := config.DefaultMarkers()
	tm := testTimings()
	return &harness{
		t:       t,
		doc:     newFakeDoc(m.AutoButton, m.InProgress[0]),
		src:     newFakeSource(),
		clock:   newFakeClock(tm.TickInterval),
		markers: m,
		timings: tm,
	}
}

func (h *harness) engine(opts Options) *Engine {
	opts.Markers = h.markers
	opts.Timings = h.timings
	opts.Clock = h.clock
	opts.Logger = discardLogger()
	return NewEngine(h.doc, h.src, opts)
}

func (h *harness) run(mode Mode, opts Options) (Result, error) {
	sess := NewSession(mode, h.timings.MaxBattle)
	return h.engine(opts).Run(context.Background(), sess)
}
