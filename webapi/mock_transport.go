package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockTransport is an in-memory Transport for tests. Sent frames are kept in
// a message log; inbound events are emulated with the Emulate* methods and
// delivered synchronously on the caller's goroutine.
type MockTransport struct {
	openDelay time.Duration

	mu        sync.Mutex
	messages  []string
	sendErr   error
	openTimer *time.Timer

	onOpen    func(OpenEvent)
	onClose   func(CloseEvent)
	onError   func(error)
	onMessage func([]byte)
}

// NewMockTransport creates a mock transport. When openDelay is positive,
// Start fires the open event after that delay.
func NewMockTransport(openDelay time.Duration) *MockTransport {
	return &MockTransport{openDelay: openDelay}
}

func (m *MockTransport) OnOpen(handler func(OpenEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = handler
}

func (m *MockTransport) OnClose(handler func(CloseEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = handler
}

func (m *MockTransport) OnError(handler func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = handler
}

func (m *MockTransport) OnMessage(handler func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = handler
}

func (m *MockTransport) Start(ctx context.Context) error {
	if m.openDelay <= 0 {
		return nil
	}
	m.mu.Lock()
	m.openTimer = time.AfterFunc(m.openDelay, func() {
		m.EmulateOpen(OpenEvent{})
	})
	m.mu.Unlock()
	return nil
}

// Send appends data to the message log.
func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.messages = append(m.messages, string(data))
	return nil
}

// Close fires the close event with code and reason.
func (m *MockTransport) Close(code int, reason string) error {
	m.mu.Lock()
	if m.openTimer != nil {
		m.openTimer.Stop()
	}
	m.mu.Unlock()

	m.EmulateClose(CloseEvent{Code: code, Reason: reason})
	return nil
}

// Messages returns a copy of all frames sent so far.
func (m *MockTransport) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}

// FailSends makes every following Send return err. A nil err restores normal
// behaviour.
func (m *MockTransport) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// EmulateIncomingMessages JSON-encodes each message and delivers it as if it
// had been received.
func (m *MockTransport) EmulateIncomingMessages(messages ...any) error {
	for i, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message %d: %w", i, err)
		}
		m.EmulateIncomingRaw(data)
	}
	return nil
}

// EmulateIncomingRaw delivers data unmodified.
func (m *MockTransport) EmulateIncomingRaw(data []byte) {
	m.mu.Lock()
	handler := m.onMessage
	m.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

func (m *MockTransport) EmulateOpen(event OpenEvent) {
	m.mu.Lock()
	handler := m.onOpen
	m.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func (m *MockTransport) EmulateError(err error) {
	m.mu.Lock()
	handler := m.onError
	m.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (m *MockTransport) EmulateClose(event CloseEvent) {
	m.mu.Lock()
	handler := m.onClose
	m.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}
