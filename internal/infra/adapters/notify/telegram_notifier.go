package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/infra/logging"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts job outcomes to an operator chat.
type TelegramNotifier struct {
	bot    Sender
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return NewTelegramNotifierWithSender(bot, chatID), nil
}

func NewTelegramNotifierWithSender(bot Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (t *TelegramNotifier) DeliverReport(ctx context.Context, to, brand string, art model.Artifact) error {
	return t.post(ctx, fmt.Sprintf("✅ Genome report ready\nBrand: %s\nRecipient: %s\nReport: %s",
		brand, logging.RedactEmail(to), art.URL))
}

func (t *TelegramNotifier) NotifyFailure(ctx context.Context, to, brand, reason string) error {
	return t.post(ctx, fmt.Sprintf("❌ Genome job failed\nBrand: %s\nRecipient: %s\nReason: %s",
		brand, logging.RedactEmail(to), reason))
}

func (t *TelegramNotifier) post(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("%w: telegram: %v", domain.ErrDelivery, err)
	}
	return nil
}
