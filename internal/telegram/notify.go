package telegram

import (
	"context"
	"strings"

	"github.com/leadbridge/leadbridge/internal/config"
)

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Sender sends a formatted message to a chat (allows mocking in tests).
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// BotNotifier sends notifications to a single Telegram chat.
type BotNotifier struct {
	sender Sender
	chatID int64
}

// NewBotNotifier creates a notifier posting to chatID through sender.
func NewBotNotifier(sender Sender, chatID int64) *BotNotifier {
	return &BotNotifier{sender: sender, chatID: chatID}
}

// Notify sends text to the configured chat. Blank messages are dropped.
func (n *BotNotifier) Notify(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.sender.SendMessage(n.chatID, text)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string) error { return nil }

// NewNotifier builds the notifier described by cfg. A disabled section
// yields a NopNotifier.
func NewNotifier(cfg config.TelegramConfig) (Notifier, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if !cfg.Enabled || token == "" || cfg.ChatID == 0 {
		return NopNotifier{}, nil
	}

	client, err := NewTGBotAPIClient(token)
	if err != nil {
		return nil, err
	}
	return NewBotNotifier(client, cfg.ChatID), nil
}

var (
	_ Notifier = (*BotNotifier)(nil)
	_ Notifier = NopNotifier{}
)
