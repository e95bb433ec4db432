package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietdungdev/raidbot/internal/bot"
	"github.com/vietdungdev/raidbot/internal/event"
)

// Controller is the part of the runner the status surface drives.
type Controller interface {
	Status() bot.Status
	Stop()
}

type HttpServer struct {
	logger     *slog.Logger
	server     *http.Server
	controller Controller
	metrics    *Metrics
	wsServer   *WebSocketServer

	mu     sync.Mutex
	recent []Notice
}

// Notice is one entry of the event feed pushed to websocket clients.
type Notice struct {
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

const recentNotices = 50

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

type WebSocketServer struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger

	// greeting, when set, is the first message every new client receives.
	greeting func() []byte
}

func NewWebSocketServer(logger *slog.Logger) *WebSocketServer {
	return &WebSocketServer{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (s *WebSocketServer) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			return
		case client := <-s.register:
			s.clients[client] = true
		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
		case message := <-s.broadcast:
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(s.clients, client)
				}
			}
		}
	}
}

// Publish queues message for every connected client. A full queue drops it.
func (s *WebSocketServer) Publish(message []byte) {
	select {
	case s.broadcast <- message:
	default:
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", slog.Any("error", err))
		return
	}

	client := &Client{conn: conn, send: make(chan []byte, 256)}
	if s.greeting != nil {
		if msg := s.greeting(); msg != nil {
			client.send <- msg
		}
	}
	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go s.writePump(client)
	go s.readPump(client)
}

func (s *WebSocketServer) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (s *WebSocketServer) readPump(client *Client) {
	defer func() {
		select {
		case s.unregister <- client:
		case <-s.done:
		}
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket read error", slog.Any("error", err))
			}
			return
		}
	}
}

func New(logger *slog.Logger, controller Controller) *HttpServer {
	s := &HttpServer{
		logger:     logger,
		controller: controller,
		metrics:    NewMetrics(),
		wsServer:   NewWebSocketServer(logger),
	}
	s.wsServer.greeting = s.statusNotice
	return s
}

func (s *HttpServer) statusNotice() []byte {
	data, err := json.Marshal(Notice{
		Type:       "status",
		Source:     "raidbot",
		OccurredAt: time.Now(),
		Data:       s.controller.Status(),
	})
	if err != nil {
		s.logger.Error("Failed to marshal status data", slog.Any("error", err))
		return nil
	}
	return data
}

// Handler returns the routes served by Listen.
func (s *HttpServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.status)
	mux.HandleFunc("/api/events", s.events)
	mux.HandleFunc("/api/stop", s.stop)
	mux.HandleFunc("/ws", s.wsServer.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Listen serves until ctx is done or Stop is called.
func (s *HttpServer) Listen(ctx context.Context, port int) error {
	go s.wsServer.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	s.logger.Info("Status server listening", slog.Int("port", port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HttpServer) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}

// HandleEvent is registered on the event listener: it feeds the metrics and
// the websocket feed.
func (s *HttpServer) HandleEvent(_ context.Context, e event.Event) error {
	s.metrics.observe(e)

	n := noticeFor(e)
	s.mu.Lock()
	s.recent = append(s.recent, n)
	if len(s.recent) > recentNotices {
		s.recent = s.recent[len(s.recent)-recentNotices:]
	}
	s.mu.Unlock()

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	s.wsServer.Publish(data)
	return nil
}

func noticeFor(e event.Event) Notice {
	n := Notice{Source: e.Source(), Message: e.Message(), OccurredAt: e.OccurredAt()}
	switch evt := e.(type) {
	case event.BattleStartedEvent:
		n.Type = "battleStarted"
		n.Data = map[string]string{"sessionId": evt.SessionID, "mode": evt.Mode}
	case event.BattleFinishedEvent:
		n.Type = "battleFinished"
		n.Data = map[string]any{
			"sessionId": evt.SessionID,
			"reason":    evt.Reason,
			"outcome":   evt.Outcome,
			"turns":     evt.Turns,
			"honors":    evt.Honors,
			"seconds":   evt.Seconds,
		}
	case event.AutomationHaltedEvent:
		n.Type = "halted"
		n.Data = map[string]string{"reason": evt.Reason}
	case event.NgrokTunnelEvent:
		n.Type = "tunnel"
		n.Data = map[string]string{"url": evt.URL}
	default:
		n.Type = "message"
	}
	return n
}

func (s *HttpServer) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.controller.Status())
}

func (s *HttpServer) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	recent := make([]Notice, len(s.recent))
	copy(recent, s.recent)
	s.mu.Unlock()
	writeJSON(w, recent)
}

func (s *HttpServer) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.logger.Info("Stop requested from the status server")
	s.controller.Stop()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
