package delivery

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Pererenchina/home-monitor-bot/models"
)

// TelegramGateway delivers listings as HTML messages through the Bot API.
type TelegramGateway struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &TelegramGateway{bot: bot}, nil
}

func (g *TelegramGateway) Send(ctx context.Context, recipientID int64, listing models.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(recipientID, FormatListing(listing))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = false

	if _, err := g.bot.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", recipientID, err)
	}
	return nil
}
