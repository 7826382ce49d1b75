package webapi

import (
	"github.com/shaharia-lab/cate/observability"
)

// ClientConfig holds all configuration for a Client.
type ClientConfig struct {
	url              string
	firstMessageID   int64
	logger           observability.Logger
	frameValidation  bool
	webSocketOptions []WebSocketOption

	onOpen    func(OpenEvent)
	onClose   func(CloseEvent)
	onError   func(error)
	onWarning func(Warning)
}

// ClientConfigOption is a function that modifies ClientConfig
type ClientConfigOption func(*ClientConfig)

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		logger:          observability.NewNullLogger(),
		frameValidation: true,
	}
}

// UseLogger sets a custom logger
func UseLogger(logger observability.Logger) ClientConfigOption {
	return func(c *ClientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// UseURL records the service URL the transport talks to.
func UseURL(url string) ClientConfigOption {
	return func(c *ClientConfig) {
		c.url = url
	}
}

// UseFirstMessageID sets the id given to the first request.
func UseFirstMessageID(id int64) ClientConfigOption {
	return func(c *ClientConfig) {
		c.firstMessageID = id
	}
}

// UseFrameValidation toggles JSON schema validation of inbound frames.
func UseFrameValidation(enabled bool) ClientConfigOption {
	return func(c *ClientConfig) {
		c.frameValidation = enabled
	}
}

// UseWebSocketOptions configures the transport created by Open.
func UseWebSocketOptions(opts ...WebSocketOption) ClientConfigOption {
	return func(c *ClientConfig) {
		c.webSocketOptions = append(c.webSocketOptions, opts...)
	}
}

// UseOnOpen sets the initial open hook.
func UseOnOpen(fn func(OpenEvent)) ClientConfigOption {
	return func(c *ClientConfig) {
		c.onOpen = fn
	}
}

// UseOnClose sets the initial close hook.
func UseOnClose(fn func(CloseEvent)) ClientConfigOption {
	return func(c *ClientConfig) {
		c.onClose = fn
	}
}

// UseOnError sets the initial error hook.
func UseOnError(fn func(error)) ClientConfigOption {
	return func(c *ClientConfig) {
		c.onError = fn
	}
}

// UseOnWarning sets the initial warning hook.
func UseOnWarning(fn func(Warning)) ClientConfigOption {
	return func(c *ClientConfig) {
		c.onWarning = fn
	}
}
