package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/vietdungdev/raidbot/internal/bot"
)

// Controller is the part of the runner reachable from chat commands.
type Controller interface {
	Status() bot.Status
	Stop()
}

type Options struct {
	Token      string
	ChannelID  string
	UseWebhook bool
	WebhookURL string
	// Admins may issue commands; everyone else is ignored.
	Admins          []string
	NotifyVictories bool
}

type Bot struct {
	discordSession *discordgo.Session
	channelID      string
	admins         []string
	controller     Controller
	useWebhook     bool
	webhookClient  *webhookClient
	notifyWins     bool
	logger         *slog.Logger
}

func NewBot(opts Options, controller Controller, logger *slog.Logger) (*Bot, error) {
	b := &Bot{
		channelID:  opts.ChannelID,
		admins:     opts.Admins,
		controller: controller,
		useWebhook: opts.UseWebhook,
		notifyWins: opts.NotifyVictories,
		logger:     logger,
	}

	if opts.UseWebhook {
		if opts.WebhookURL == "" {
			return nil, fmt.Errorf("webhook URL is required when using webhook mode")
		}
		b.webhookClient = newWebhookClient(opts.WebhookURL)
		return b, nil
	}

	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	b.discordSession = dg

	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	if b.useWebhook {
		<-ctx.Done()
		return nil
	}

	b.discordSession.AddHandler(b.onMessageCreated)
	// MESSAGE_CONTENT is required to read command text.
	b.discordSession.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	if err := b.discordSession.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	<-ctx.Done()

	return b.discordSession.Close()
}

func (b *Bot) onMessageCreated(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if !slices.Contains(b.admins, m.Author.ID) {
		return
	}

	reply, ok := b.command(m.Content)
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.logger.Warn("Discord reply failed", slog.Any("error", err))
	}
}

// command answers one chat command. Messages without the "!" prefix are not
// commands.
func (b *Bot) command(content string) (string, bool) {
	if !strings.HasPrefix(content, "!") {
		return "", false
	}

	prefix := strings.Fields(content)[0]
	switch prefix {
	case "!status":
		return formatStatus(b.controller.Status()), true
	case "!stop":
		st := b.controller.Status()
		if !st.Running {
			return "Raidbot is not running.", true
		}
		b.controller.Stop()
		return "Raidbot will stop after the current tick.", true
	case "!help":
		return "Available commands: `!status`, `!stop`, `!help`", true
	default:
		return fmt.Sprintf("Unknown command: `%s`. Type `!help` for available commands.", prefix), true
	}
}

func formatStatus(st bot.Status) string {
	state := "idle"
	switch {
	case st.Halted != "":
		state = "halted: " + st.Halted
	case st.Running:
		state = "running"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Raidbot is **%s**\n", state)
	fmt.Fprintf(&sb, "Encounters: %d (victories %d, defeats %d)", st.Encounters, st.Victories, st.Defeats)
	if st.SessionID != "" {
		fmt.Fprintf(&sb, "\nLast: %s in %d turns, %d honors", st.Last.Outcome, st.Last.Turns, st.Last.Honors)
	}
	return sb.String()
}
