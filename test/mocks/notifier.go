package mocks

import (
	"context"
	"sync"
	"time"
)

// SentMessage represents a delivered notification
type SentMessage struct {
	Text string
	Time time.Time
}

// MockNotifier records notifications instead of sending them.
type MockNotifier struct {
	mu       sync.Mutex
	messages []SentMessage
	err      error
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records text.
func (m *MockNotifier) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, SentMessage{Text: text, Time: time.Now()})
	return nil
}

// SetError makes subsequent Notify calls fail with err.
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Messages returns the recorded notifications.
func (m *MockNotifier) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]SentMessage, len(m.messages))
	copy(result, m.messages)
	return result
}
