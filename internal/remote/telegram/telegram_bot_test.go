package telegram

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietdungdev/raidbot/internal/bot"
	"github.com/vietdungdev/raidbot/internal/event"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
	stops   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 4)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	f.mu.Unlock()
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetUpdates(tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	return []tgbotapi.Update{{UpdateID: 41}}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	close(f.updates)
}

func (f *fakeAPI) messages() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

type stubController struct {
	mu      sync.Mutex
	stopped int
}

func (c *stubController) Status() bot.Status {
	return bot.Status{Running: true, Encounters: 2, Victories: 1, Defeats: 1}
}

func (c *stubController) Stop() {
	c.mu.Lock()
	c.stopped++
	c.mu.Unlock()
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandleFormatsEvents(t *testing.T) {
	api := newFakeAPI()
	b := newBot(api, 7, &stubController{}, false, discard())
	ctx := context.Background()

	require.NoError(t, b.Handle(ctx, event.BattleFinished(event.Text("s-1", "done"), "s-1", event.FinishedDefeat, "defeat", 4, 300, 61.4)))
	require.NoError(t, b.Handle(ctx, event.BattleFinished(event.Text("s-2", "done"), "s-2", event.FinishedOK, "victory", 4, 300, 61.4)))
	require.NoError(t, b.Handle(ctx, event.AutomationHalted(event.Text("runner", "battle timeout"), "timeout")))
	require.NoError(t, b.Handle(ctx, event.WithScreenshot("s-3", "stuck", []byte{1, 2, 3})))

	sent := api.messages()
	require.Len(t, sent, 3)

	msg, ok := sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Equal(t, "[s-1] defeat: 4 turns, 300 honors (61s)", msg.Text)

	msg, ok = sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "Automation halted (timeout): battle timeout", msg.Text)

	photo, ok := sent[2].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "[s-3] stuck", photo.Caption)
}

func TestHandleVictoriesWhenEnabled(t *testing.T) {
	api := newFakeAPI()
	b := newBot(api, 7, &stubController{}, true, discard())

	require.NoError(t, b.Handle(context.Background(), event.BattleFinished(event.Text("s-2", "done"), "s-2", event.FinishedGoal, "goal reached", 9, 5200, 300)))
	assert.Len(t, api.messages(), 1)
}

func TestStartAnswersCommandsFromTheChat(t *testing.T) {
	api := newFakeAPI()
	ctrl := &stubController{}
	b := newBot(api, 7, ctrl, false, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 99}, Text: "stop"}}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "/status"}}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "stop"}}

	require.Eventually(t, func() bool { return len(api.messages()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	b.Close()

	first := api.messages()[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "Raidbot is running. Encounters 2, victories 1, defeats 1.", first.Text)
	ctrl.mu.Lock()
	assert.Equal(t, 1, ctrl.stopped, "messages from other chats are ignored")
	ctrl.mu.Unlock()
	assert.Equal(t, 1, api.stops)
}
