package event

import (
	"context"
	"log/slog"
	"time"
)

var events = make(chan Event, 100)

// Send queues e for every registered handler. It never blocks the caller: when
// the queue is full the event is dropped.
func Send(e Event) {
	select {
	case events <- e:
	default:
	}
}

type Handler func(ctx context.Context, e Event) error

type Listener struct {
	handlers []Handler
	logger   *slog.Logger
}

func NewListener(logger *slog.Logger) *Listener {
	return &Listener{logger: logger}
}

// Register adds h. Handlers must be registered before Listen starts.
func (l *Listener) Register(h Handler) {
	l.handlers = append(l.handlers, h)
}

// drainTimeout bounds the delivery of events still queued at shutdown.
const drainTimeout = 10 * time.Second

// Listen dispatches queued events until ctx is done. Events sent before that,
// such as the halt notice that triggers shutdown, are still delivered with a
// fresh context bounded by drainTimeout.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.drain(ctx)
			return nil
		case e := <-events:
			if ctx.Err() != nil {
				l.drain(ctx, e)
				return nil
			}
			l.dispatch(ctx, e)
		}
	}
}

func (l *Listener) drain(ctx context.Context, pending ...Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	for _, e := range pending {
		l.dispatch(ctx, e)
	}
	for ctx.Err() == nil {
		select {
		case e := <-events:
			l.dispatch(ctx, e)
		default:
			return
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, e Event) {
	for _, h := range l.handlers {
		if err := h(ctx, e); err != nil {
			l.logger.Error("error running event handler", slog.Any("error", err))
		}
	}
}
