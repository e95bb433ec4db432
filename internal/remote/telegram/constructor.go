package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxRetries = 3

// NewBot connects to the Bot API. The first call to api.telegram.org can fail
// with a TCP reset, so it is retried with backoff before giving up.
func NewBot(ctx context.Context, token string, chatID int64, controller Controller, notifyWins bool, logger *slog.Logger) (*Bot, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2

	attempt := 0
	api, err := backoff.Retry(ctx, func() (*tgbotapi.BotAPI, error) {
		attempt++
		api, err := tgbotapi.NewBotAPI(token)
		if err != nil && attempt < maxRetries {
			logger.Warn("Telegram API connection failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("maxRetries", maxRetries),
				slog.Any("error", err),
			)
		}
		return api, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxRetries))
	if err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return newBot(api, chatID, controller, notifyWins, logger), nil
}

func newBot(api sender, chatID int64, controller Controller, notifyWins bool, logger *slog.Logger) *Bot {
	return &Bot{bot: api, chatID: chatID, controller: controller, notifyWins: notifyWins, logger: logger}
}
