package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mu       sync.Mutex
	messages []mockMessage
	err      error
}

type mockMessage struct {
	chatID int64
	text   string
}

func (m *mockSender) SendMessage(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, mockMessage{chatID: chatID, text: text})
	return nil
}

func (m *mockSender) sent() []mockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockMessage(nil), m.messages...)
}

func TestBotNotifierSends(t *testing.T) {
	sender := &mockSender{}
	n := NewBotNotifier(sender, 42)

	require.NoError(t, n.Notify(context.Background(), "hello"))

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].chatID)
	assert.Equal(t, "hello", msgs[0].text)
}

func TestBotNotifierSkipsBlank(t *testing.T) {
	sender := &mockSender{}
	n := NewBotNotifier(sender, 42)

	require.NoError(t, n.Notify(context.Background(), "  \n"))
	assert.Empty(t, sender.sent())
}

func TestBotNotifierPropagatesErrors(t *testing.T) {
	sender := &mockSender{err: errors.New("bot blocked")}
	n := NewBotNotifier(sender, 42)

	err := n.Notify(context.Background(), "hello")
	assert.EqualError(t, err, "bot blocked")
}

func TestBotNotifierCancelledContext(t *testing.T) {
	sender := &mockSender{}
	n := NewBotNotifier(sender, 42)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.Notify(ctx, "hello"), context.Canceled)
	assert.Empty(t, sender.sent())
}

func TestNewNotifierDisabled(t *testing.T) {
	n, err := NewNotifier(config.TelegramConfig{Enabled: false, BotToken: "x", ChatID: 1})
	require.NoError(t, err)
	assert.IsType(t, NopNotifier{}, n)
	assert.NoError(t, n.Notify(context.Background(), "ignored"))
}
