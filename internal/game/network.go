package game

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vietdungdev/raidbot/internal/packet"
)

var _ packet.Source = (*NetworkSource)(nil)

type finishedResponse struct {
	id  proto.NetworkRequestID
	url string
}

// NetworkSource intercepts responses through the DevTools network domain and
// delivers the bodies of recognised endpoints to its subscribers, in arrival
// order.
type NetworkSource struct {
	page   *rod.Page
	logger *slog.Logger

	mu       sync.Mutex
	next     int
	handlers map[int]func(packet.RawMessage)

	pendingMu sync.Mutex
	pending   map[proto.NetworkRequestID]string
}

func NewNetworkSource(page *rod.Page, logger *slog.Logger) *NetworkSource {
	return &NetworkSource{
		page:     page,
		logger:   logger,
		handlers: make(map[int]func(packet.RawMessage)),
		pending:  make(map[proto.NetworkRequestID]string),
	}
}

// Start enables the network domain and pumps responses until ctx is done.
func (s *NetworkSource) Start(ctx context.Context) error {
	page := s.page.Context(ctx)
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("failed to enable network events: %w", err)
	}

	finished := make(chan finishedResponse, 64)
	wait := page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil || !packet.Recognized(e.Response.URL) {
				return
			}
			s.track(e.RequestID, e.Response.URL)
		},
		func(e *proto.NetworkLoadingFinished) {
			url, ok := s.take(e.RequestID)
			if !ok {
				return
			}
			select {
			case finished <- finishedResponse{id: e.RequestID, url: url}:
			case <-ctx.Done():
			}
		},
		// Requests cut off by a reload never finish.
		func(e *proto.NetworkLoadingFailed) {
			if url, ok := s.take(e.RequestID); ok {
				s.logger.Debug("Response failed", slog.String("url", sanitizeURL(url)), slog.String("error", e.ErrorText), slog.Bool("canceled", e.Canceled))
			}
		},
	)
	go wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-finished:
			s.fetch(page, f)
		}
	}
}

func (s *NetworkSource) track(id proto.NetworkRequestID, url string) {
	s.pendingMu.Lock()
	s.pending[id] = url
	s.pendingMu.Unlock()
}

// take removes id from the pending set and returns its URL.
func (s *NetworkSource) take(id proto.NetworkRequestID) (string, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	url, ok := s.pending[id]
	delete(s.pending, id)
	return url, ok
}

func (s *NetworkSource) fetch(page *rod.Page, f finishedResponse) {
	res, err := proto.NetworkGetResponseBody{RequestID: f.id}.Call(page)
	if err != nil {
		s.logger.Debug("Could not read response body", slog.String("url", sanitizeURL(f.url)), slog.Any("error", err))
		return
	}
	body := []byte(res.Body)
	if res.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			s.logger.Debug("Could not decode response body", slog.String("url", sanitizeURL(f.url)), slog.Any("error", err))
			return
		}
		body = decoded
	}
	s.deliver(packet.RawMessage{URL: f.url, Payload: body, ReceivedAt: time.Now()})
}

func (s *NetworkSource) Subscribe(handler func(packet.RawMessage)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.handlers[id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

func (s *NetworkSource) deliver(m packet.RawMessage) {
	s.mu.Lock()
	handlers := make([]func(packet.RawMessage), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(m)
	}
}
