package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietdungdev/raidbot/internal/battle"
	"github.com/vietdungdev/raidbot/internal/bot"
	"github.com/vietdungdev/raidbot/internal/event"
)

type stubController struct {
	mu      sync.Mutex
	status  bot.Status
	stopped int
}

func (c *stubController) Status() bot.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *stubController) Stop() {
	c.mu.Lock()
	c.stopped++
	c.mu.Unlock()
}

func (c *stubController) stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func newTestServer(t *testing.T) (*HttpServer, *stubController, *httptest.Server) {
	t.Helper()
	ctrl := &stubController{status: bot.Status{
		Running:    true,
		Encounters: 3,
		Victories:  2,
		Last:       battle.Result{Outcome: battle.OutcomeVictory, Turns: 4},
	}}
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	go s.wsServer.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return s, ctrl, ts
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func finished(outcome string, reason event.FinishReason) event.BattleFinishedEvent {
	return event.BattleFinished(event.Text("s-1", "Battle finished"), "s-1", reason, outcome, 5, 1200, 42)
}

func TestStatusEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, true, got["running"])
	assert.EqualValues(t, 3, got["encounters"])
	assert.EqualValues(t, 2, got["victories"])
}

func TestStopEndpoint(t *testing.T) {
	_, ctrl, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Zero(t, ctrl.stops())

	resp, err = http.Post(ts.URL+"/api/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, ctrl.stops())
}

func TestHandleEventFeedsMetricsAndHistory(t *testing.T) {
	s, _, ts := newTestServer(t)
	counter := s.metrics.BattlesTotal.WithLabelValues("victory", string(event.FinishedOK))
	before := value(t, counter)

	require.NoError(t, s.HandleEvent(context.Background(), finished("victory", event.FinishedOK)))
	require.NoError(t, s.HandleEvent(context.Background(), event.AutomationHalted(event.Text("runner", "boom"), "timeout")))

	assert.Equal(t, before+1, value(t, counter))
	assert.Equal(t, float64(1200), value(t, s.metrics.HonorsLast))
	assert.Equal(t, float64(1), value(t, s.metrics.Halted))

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	var notices []Notice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notices))
	require.Len(t, notices, 2)
	assert.Equal(t, "battleFinished", notices[0].Type)
	assert.Equal(t, "halted", notices[1].Type)
}

func TestEventHistoryIsBounded(t *testing.T) {
	s, _, _ := newTestServer(t)
	for i := 0; i < recentNotices+10; i++ {
		require.NoError(t, s.HandleEvent(context.Background(), event.Text("x", "hello")))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.recent, recentNotices)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, ts := newTestServer(t)
	require.NoError(t, s.HandleEvent(context.Background(), finished("defeat", event.FinishedDefeat)))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "raidbot_battles_total")
	assert.Contains(t, string(body), "raidbot_battle_turns")
}

func TestWebSocketBroadcast(t *testing.T) {
	s, _, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var greeting Notice
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, "status", greeting.Type)

	require.NoError(t, s.HandleEvent(context.Background(), finished("victory", event.FinishedOK)))

	var n Notice
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "battleFinished", n.Type)
	assert.Equal(t, "s-1", n.Source)
}

func TestNoticeForTunnel(t *testing.T) {
	n := noticeFor(event.NgrokTunnel("https://abc.ngrok.app"))
	assert.Equal(t, "tunnel", n.Type)
	assert.Equal(t, map[string]string{"url": "https://abc.ngrok.app"}, n.Data)
}
