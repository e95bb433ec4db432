package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vietdungdev/raidbot/internal/bot"
	"github.com/vietdungdev/raidbot/internal/event"
)

// Controller is the part of the runner reachable from chat commands.
type Controller interface {
	Status() bot.Status
	Stop()
}

// sender is the subset of the Bot API client in use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	bot        sender
	chatID     int64
	controller Controller
	notifyWins bool
	logger     *slog.Logger

	stopOnce sync.Once
}

func (b *Bot) Start(ctx context.Context) error {
	offset, err := b.getLatestOffset()
	if err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(offset)
	u.Timeout = 5
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.stopUpdates()
			for range updates {
			}
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != b.chatID {
				continue
			}
			reply, ok := b.command(update.Message.Text)
			if !ok {
				continue
			}
			if _, err := b.bot.Send(tgbotapi.NewMessage(b.chatID, reply)); err != nil {
				b.logger.Warn("Telegram reply failed", slog.Any("error", err))
			}
		}
	}
}

func (b *Bot) getLatestOffset() (int, error) {
	upds, err := b.bot.GetUpdates(tgbotapi.NewUpdate(-1))
	if err != nil {
		return 0, err
	}
	offset := 0
	if len(upds) > 0 {
		offset = upds[0].UpdateID + 1
	}
	return offset, nil
}

func (b *Bot) command(text string) (string, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(text), "/")) {
	case "status":
		st := b.controller.Status()
		state := "idle"
		switch {
		case st.Halted != "":
			state = "halted: " + st.Halted
		case st.Running:
			state = "running"
		}
		return fmt.Sprintf("Raidbot is %s. Encounters %d, victories %d, defeats %d.",
			state, st.Encounters, st.Victories, st.Defeats), true
	case "stop":
		b.controller.Stop()
		return "Stopping after the current tick.", true
	default:
		return "", false
	}
}

func (b *Bot) Handle(_ context.Context, e event.Event) error {
	text, ok := b.messageFor(e)
	if !ok {
		return nil
	}

	if img := e.Image(); img != nil {
		photo := tgbotapi.NewPhoto(b.chatID, tgbotapi.FileBytes{Name: "screenshot.png", Bytes: img})
		photo.Caption = text
		_, err := b.bot.Send(photo)
		return err
	}
	_, err := b.bot.Send(tgbotapi.NewMessage(b.chatID, text))
	return err
}

func (b *Bot) messageFor(e event.Event) (string, bool) {
	switch evt := e.(type) {
	case event.BattleFinishedEvent:
		switch evt.Reason {
		case event.FinishedOK, event.FinishedGoal:
			if !b.notifyWins {
				return "", false
			}
		case event.FinishedAborted:
			return "", false
		}
		return fmt.Sprintf("[%s] %s: %d turns, %d honors (%.0fs)", evt.SessionID, evt.Outcome, evt.Turns, evt.Honors, evt.Seconds), true
	case event.AutomationHaltedEvent:
		return fmt.Sprintf("Automation halted (%s): %s", evt.Reason, evt.Message()), true
	case event.NgrokTunnelEvent:
		return evt.Message(), true
	case event.BattleStartedEvent:
		return "", false
	}
	if e.Image() == nil {
		return "", false
	}
	return fmt.Sprintf("[%s] %s", e.Source(), e.Message()), true
}

// StopReceivingUpdates closes a channel and must run at most once.
func (b *Bot) stopUpdates() {
	b.stopOnce.Do(b.bot.StopReceivingUpdates)
}

// Close stops update polling and drops idle connections.
func (b *Bot) Close() {
	if b == nil || b.bot == nil {
		return
	}
	b.stopUpdates()
	api, ok := b.bot.(*tgbotapi.BotAPI)
	if !ok {
		return
	}
	if c, ok := api.Client.(*http.Client); ok && c != nil {
		if tr, ok := c.Transport.(*http.Transport); ok && tr != nil {
			tr.CloseIdleConnections()
		}
	}
}
