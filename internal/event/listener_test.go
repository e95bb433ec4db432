package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerDispatchesToEveryHandler(t *testing.T) {
	l := NewListener(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	l.Register(func(_ context.Context, e Event) error {
		return errors.New("failing handlers don't stop the others")
	})
	l.Register(func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Message())
		if len(got) == 2 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Listen(ctx) }()

	Send(BattleStarted(Text("s1", "Battle started"), "s1", "hands-off"))
	Send(AutomationHalted(Text("s1", "Session invalidated"), "login"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events were not dispatched")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Battle started", "Session invalidated"}, got)
}

func TestListenDeliversQueuedEventsAfterCancel(t *testing.T) {
	for i := 0; i < 50; i++ {
		l := NewListener(slog.New(slog.NewTextHandler(io.Discard, nil)))
		var delivered []error
		l.Register(func(ctx context.Context, e Event) error {
			delivered = append(delivered, ctx.Err())
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		Send(AutomationHalted(Text("runner", "Battle timed out"), "timeout"))
		cancel()

		require.NoError(t, l.Listen(ctx))
		require.Len(t, delivered, 1, "the halt notice is delivered exactly once")
		assert.NoError(t, delivered[0], "handlers get a live context while draining")
	}
}

func TestNgrokTunnelMessage(t *testing.T) {
	e := NgrokTunnel("https://abc.ngrok.app")
	assert.Equal(t, "https://abc.ngrok.app", e.URL)
	assert.Contains(t, e.Message(), e.URL)
	assert.Nil(t, e.Image())
}
