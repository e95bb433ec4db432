package discord

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vietdungdev/raidbot/internal/event"
)

const (
	colorVictory = 0x2ECC71
	colorDefeat  = 0xE74C3C
	colorNeutral = 0x95A5A6
	colorHalted  = 0xE67E22
)

func (b *Bot) Handle(ctx context.Context, e event.Event) error {
	if !b.shouldPublish(e) {
		return nil
	}

	switch evt := e.(type) {
	case event.BattleFinishedEvent:
		return b.sendEmbed(ctx, buildFinishedEmbed(evt))
	case event.AutomationHaltedEvent:
		return b.sendEmbed(ctx, &discordgo.MessageEmbed{
			Title:       "Automation halted",
			Description: evt.Message(),
			Color:       colorHalted,
			Fields:      []*discordgo.MessageEmbedField{{Name: "Reason", Value: evt.Reason}},
			Timestamp:   evt.OccurredAt().Format(time.RFC3339),
		})
	case event.NgrokTunnelEvent:
		return b.sendEventMessage(ctx, evt.Message())
	default:
		break
	}

	message := fmt.Sprintf("**[%s]** %s", e.Source(), e.Message())
	return b.sendScreenshot(ctx, message, e.Image())
}

func buildFinishedEmbed(evt event.BattleFinishedEvent) *discordgo.MessageEmbed {
	color := colorNeutral
	switch evt.Reason {
	case event.FinishedOK, event.FinishedGoal:
		color = colorVictory
	case event.FinishedDefeat, event.FinishedError, event.FinishedTimeout:
		color = colorDefeat
	}

	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Battle %s", evt.Outcome),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Turns", Value: fmt.Sprintf("%d", evt.Turns), Inline: true},
			{Name: "Honors", Value: fmt.Sprintf("%d", evt.Honors), Inline: true},
			{Name: "Duration", Value: (time.Duration(evt.Seconds) * time.Second).String(), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: evt.SessionID},
		Timestamp: evt.OccurredAt().Format(time.RFC3339),
	}
}

func (b *Bot) sendEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	if b.useWebhook {
		return b.webhookClient.SendEmbed(ctx, embed)
	}

	_, err := b.discordSession.ChannelMessageSendEmbed(b.channelID, embed)
	return err
}

func (b *Bot) sendEventMessage(ctx context.Context, message string) error {
	if b.useWebhook {
		return b.webhookClient.Send(ctx, message, "", nil)
	}

	_, err := b.discordSession.ChannelMessageSend(b.channelID, message)
	return err
}

func (b *Bot) sendScreenshot(ctx context.Context, message string, image []byte) error {
	if b.useWebhook {
		return b.webhookClient.Send(ctx, message, "Screenshot.png", image)
	}

	_, err := b.discordSession.ChannelMessageSendComplex(b.channelID, &discordgo.MessageSend{
		Files:   []*discordgo.File{{Name: "Screenshot.png", ContentType: "image/png", Reader: bytes.NewReader(image)}},
		Content: message,
	})
	return err
}

func (b *Bot) shouldPublish(e event.Event) bool {
	switch evt := e.(type) {
	case event.BattleFinishedEvent:
		switch evt.Reason {
		case event.FinishedOK, event.FinishedGoal:
			return b.notifyWins
		case event.FinishedAborted:
			return false
		}
		return true
	case event.AutomationHaltedEvent, event.NgrokTunnelEvent:
		return true
	case event.BattleStartedEvent:
		return false
	}

	return e.Image() != nil
}
