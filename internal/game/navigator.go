package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vietdungdev/raidbot/internal/config"
)

// Navigator brings the page to the next encounter. Raid discovery is handled
// outside the bot; the navigator only opens the configured battle URL.
type Navigator struct {
	page      *Page
	battleURL string
	logger    *slog.Logger
}

func NewNavigator(page *Page, cfg config.BrowserCfg, logger *slog.Logger) *Navigator {
	return &Navigator{page: page, battleURL: cfg.BattleURL, logger: logger}
}

// Next opens the battle URL. With no URL configured the current page is
// assumed to already show the encounter.
func (n *Navigator) Next(ctx context.Context) error {
	if n.battleURL == "" {
		return nil
	}
	n.logger.Debug("Opening encounter", slog.String("url", sanitizeURL(n.battleURL)))
	if err := n.page.Navigate(ctx, n.battleURL); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		n.logger.Warn("Could not open encounter", slog.Any("error", err))
		return err
	}
	return nil
}
