package game

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vietdungdev/raidbot/internal/config"
)

// Browser is the automated browser the bot drives. It either attaches to an
// already running instance or launches its own.
type Browser struct {
	browser *rod.Browser
	launch  *launcher.Launcher
	logger  *slog.Logger
}

func NewBrowser(ctx context.Context, cfg config.BrowserCfg, logger *slog.Logger) (*Browser, error) {
	controlURL := cfg.ControlURL
	var launch *launcher.Launcher

	if controlURL == "" {
		maybeLogBrowserDownload(ctx, logger)
		launch = launcher.New().Context(ctx).Headless(cfg.Headless)
		if cfg.UserDataDir != "" {
			launch = launch.UserDataDir(cfg.UserDataDir)
		}
		u, err := launch.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if launch != nil {
			launch.Cleanup()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	logger.Info("Connected to browser", slog.Bool("launched", launch != nil))

	return &Browser{browser: browser, launch: launch, logger: logger}, nil
}

// Page returns the first open tab, or a new one when the browser has none.
func (b *Browser) Page() (*rod.Page, error) {
	pages, err := b.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) > 0 {
		return pages.First(), nil
	}
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

// Close disconnects. A browser the bot did not launch is left running.
func (b *Browser) Close() error {
	if b.launch == nil {
		return nil
	}
	err := b.browser.Close()
	b.launch.Cleanup()
	return err
}

func maybeLogBrowserDownload(ctx context.Context, logger *slog.Logger) {
	browser := launcher.NewBrowser()
	browser.Context = ctx
	if err := browser.Validate(); err != nil {
		logger.Info("Downloading the Chromium build used for automation (first time only)...")
	}
}

// sanitizeURL drops query values that carry session identifiers before a URL
// is logged.
func sanitizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	updated := false
	for key := range query {
		switch strings.ToLower(key) {
		case "sid", "token", "uid", "_":
			query.Set(key, "REDACTED")
			updated = true
		}
	}
	if !updated {
		return rawURL
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
