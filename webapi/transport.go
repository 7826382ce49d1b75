package webapi

import "context"

// OpenEvent is delivered once the transport is ready to send.
type OpenEvent struct {
	URL string
}

// CloseEvent is delivered when the transport has terminated.
type CloseEvent struct {
	Code   int
	Reason string
}

// Transport is the minimal bidirectional message socket the client runs on.
// Implementations must deliver messages in the order they were received.
type Transport interface {
	OnOpen(handler func(OpenEvent))
	OnClose(handler func(CloseEvent))
	OnError(handler func(error))
	OnMessage(handler func(data []byte))

	// Start connects the transport. Handlers must be installed first.
	Start(ctx context.Context) error
	Send(data []byte) error
	Close(code int, reason string) error
}
