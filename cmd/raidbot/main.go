package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"golang.org/x/sync/errgroup"

	rblog "github.com/vietdungdev/raidbot/cmd/raidbot/log"
	"github.com/vietdungdev/raidbot/internal/battle"
	"github.com/vietdungdev/raidbot/internal/bot"
	"github.com/vietdungdev/raidbot/internal/config"
	"github.com/vietdungdev/raidbot/internal/event"
	"github.com/vietdungdev/raidbot/internal/game"
	"github.com/vietdungdev/raidbot/internal/remote/discord"
	ngrokremote "github.com/vietdungdev/raidbot/internal/remote/ngrok"
	"github.com/vietdungdev/raidbot/internal/remote/telegram"
	"github.com/vietdungdev/raidbot/internal/server"
	"github.com/vietdungdev/raidbot/internal/utils"
)

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, debug.Stack()))
				rblog.FlushLog()
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return f()
	}
}

func main() {
	if created, err := config.CreateFromTemplate(); err != nil {
		log.Fatalf("Error preparing configuration: %s", err.Error())
	} else if created {
		log.Println("config/raidbot.yaml created from the template, review it and start again")
		return
	}

	if err := config.Load(); err != nil {
		log.Fatalf("Error loading configuration: %s", err.Error())
	}
	cfg := config.Raidbot

	logger, err := rblog.NewLogger(cfg.Debug.Log, cfg.LogSaveDirectory, "")
	if err != nil {
		log.Fatalf("Error starting logger: %s", err.Error())
	}
	defer rblog.FlushAndClose()

	if err := run(cfg, logger); err != nil {
		logger.Error("Error running raidbot", slog.Any("error", err))
		rblog.FlushAndClose()
		os.Exit(1)
	}
}

func run(cfg *config.RaidbotCfg, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	browser, err := game.NewBrowser(ctx, cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("error closing browser", slog.Any("error", err))
		}
	}()

	rodPage, err := browser.Page()
	if err != nil {
		return err
	}
	page := game.NewPage(rodPage, cfg.Markers, logger)
	network := game.NewNetworkSource(rodPage, logger)
	navigator := game.NewNavigator(page, cfg.Browser, logger)

	settings, err := bot.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}

	var runner *bot.Runner
	engine := battle.NewEngine(page, network, battle.Options{
		HonorTarget: cfg.Battle.HonorTarget,
		TrackHonors: cfg.Battle.TrackHonors,
		Timings:     cfg.Battle.Timings(),
		Markers:     cfg.Markers,
		Logger:      logger,
		OnHalt: func(reason string) {
			runner.Halt(reason)
		},
	})
	runner = bot.NewRunner(engine, navigator, network, settings, utils.SystemClock{}, logger).WithScreenshots(page)

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel = context.WithCancel(ctx)
	defer cancel()

	eventListener := event.NewListener(logger)

	var srv *server.HttpServer
	if cfg.Server.Enabled {
		srv = server.New(logger, runner)
		eventListener.Register(srv.HandleEvent)
		g.Go(wrapWithRecover(logger, func() error {
			return srv.Listen(ctx, cfg.Server.Port)
		}))
	}

	var tunnel *ngrokremote.Tunnel
	if cfg.Ngrok.Enabled && srv != nil {
		if cfg.Ngrok.Authtoken == "" && os.Getenv("NGROK_AUTHTOKEN") == "" {
			logger.Warn("ngrok enabled but no authtoken set; skipping tunnel start")
		} else if tunnel, err = ngrokremote.Start(ctx, ngrokremote.OptionsFromConfig(cfg)); err != nil {
			logger.Error("ngrok tunnel failed to start", slog.Any("error", err))
		} else {
			logger.Info("ngrok tunnel established", slog.String("url", tunnel.URL()))
			if cfg.Ngrok.SendURL {
				event.Send(event.NgrokTunnel(tunnel.URL()))
			}
		}
	}

	if cfg.Discord.Enabled {
		discordBot, err := discord.NewBot(discord.Options{
			Token:           cfg.Discord.Token,
			ChannelID:       cfg.Discord.ChannelID,
			UseWebhook:      cfg.Discord.UseWebhook,
			WebhookURL:      cfg.Discord.WebhookURL,
			Admins:          cfg.Discord.BotAdmins,
			NotifyVictories: cfg.Discord.NotifyVictories,
		}, runner, logger)
		if err != nil {
			return fmt.Errorf("discord could not be initialized: %w", err)
		}
		eventListener.Register(discordBot.Handle)
		if !cfg.Discord.UseWebhook {
			g.Go(wrapWithRecover(logger, func() error {
				return discordBot.Start(ctx)
			}))
		}
	}

	if cfg.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(ctx, cfg.Telegram.Token, cfg.Telegram.ChatID, runner, cfg.Telegram.NotifyVictories, logger)
		if err != nil {
			return fmt.Errorf("telegram could not be initialized: %w", err)
		}
		defer telegramBot.Close()
		eventListener.Register(telegramBot.Handle)
		g.Go(wrapWithRecover(logger, func() error {
			return telegramBot.Start(ctx)
		}))
	}

	g.Go(wrapWithRecover(logger, func() error {
		return eventListener.Listen(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		// The run ends on its own once the encounter budget is spent or a
		// fatal condition halts it; everything else follows.
		defer cancel()
		return runner.Run(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		<-ctx.Done()
		logger.Info("raidbot shutting down...")
		runner.Stop()
		var err error
		if srv != nil {
			if err = srv.Stop(); err != nil {
				logger.Error("error stopping local server", slog.Any("error", err))
			}
		}
		if tunnel != nil {
			if closeErr := tunnel.Close(); closeErr != nil {
				logger.Error("error stopping ngrok tunnel", slog.Any("error", closeErr))
			}
		}
		return err
	}))

	return g.Wait()
}
