package webapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shaharia-lab/cate/observability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	closeGracePeriod    = 2 * time.Second
	sendQueueSize       = 64
)

// ErrTransportClosed is returned by Send once the transport is closed or
// before it has been started.
var ErrTransportClosed = errors.New("webapi: transport is not open")

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// UseDialer sets the websocket dialer.
func UseDialer(dialer *websocket.Dialer) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.dialer = dialer
	}
}

// UseHeader sets extra HTTP headers sent with the handshake.
func UseHeader(header http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.header = header
	}
}

// UsePingInterval sets the keep-alive ping interval. Zero disables pings.
func UsePingInterval(interval time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.pingInterval = interval
	}
}

// UseSendRateLimit limits outbound frames to r per second with the given burst.
func UseSendRateLimit(r rate.Limit, burst int) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.limiter = rate.NewLimiter(r, burst)
	}
}

// UseTransportLogger sets the transport logger.
func UseTransportLogger(logger observability.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WebSocketTransport is a Transport over a gorilla/websocket connection.
// Reads and writes run in their own pumps; Send only enqueues.
type WebSocketTransport struct {
	url          string
	dialer       *websocket.Dialer
	header       http.Header
	pingInterval time.Duration
	writeTimeout time.Duration
	limiter      *rate.Limiter
	logger       observability.Logger

	mu        sync.RWMutex
	onOpen    func(OpenEvent)
	onClose   func(CloseEvent)
	onError   func(error)
	onMessage func([]byte)

	conn      *websocket.Conn
	queue     chan []byte
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
}

// NewWebSocketTransport creates a transport for url. It does not dial until
// Start is called.
func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:          url,
		dialer:       websocket.DefaultDialer,
		pingInterval: defaultPingInterval,
		writeTimeout: defaultWriteTimeout,
		logger:       observability.NewNullLogger(),
		queue:        make(chan []byte, sendQueueSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSocketTransport) OnOpen(handler func(OpenEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = handler
}

func (t *WebSocketTransport) OnClose(handler func(CloseEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = handler
}

func (t *WebSocketTransport) OnError(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = handler
}

func (t *WebSocketTransport) OnMessage(handler func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = handler
}

// Start dials the server and starts the read and write pumps.
func (t *WebSocketTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport for %s already started", t.url)
	}
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		err = fmt.Errorf("failed to dial %s: %w", t.url, err)
		t.fireError(err)
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.logger.Debugf("WebSocket connected to %s", t.url)
	t.fireOpen(OpenEvent{URL: t.url})

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return t.readPump(conn) })
	g.Go(func() error {
		err := t.writePump(gctx, conn)
		if err != nil {
			// unblock the read pump
			conn.Close()
		}
		return err
	})

	go func() {
		err := g.Wait()
		conn.Close()
		close(t.done)
		t.fireClose(t.closeEvent(err))
	}()

	return nil
}

// Send enqueues data for the write pump.
func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.RLock()
	started := t.conn != nil
	t.mu.RUnlock()
	if !started {
		return ErrTransportClosed
	}

	select {
	case <-t.closing:
		return ErrTransportClosed
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.queue <- data:
		return nil
	case <-t.done:
		return ErrTransportClosed
	}
}

// Close sends a close frame with code and reason and terminates the
// connection. Closing a transport that was never started fires the close
// handler immediately.
func (t *WebSocketTransport) Close(code int, reason string) error {
	t.mu.RLock()
	started := t.conn != nil
	t.mu.RUnlock()

	first := false
	t.closeOnce.Do(func() {
		first = true
		t.mu.Lock()
		t.closeCode = code
		t.closeText = reason
		t.mu.Unlock()
		close(t.closing)
	})

	if first && !started {
		t.fireClose(CloseEvent{Code: code, Reason: reason})
	}
	return nil
}

func (t *WebSocketTransport) readPump(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		t.mu.RLock()
		handler := t.onMessage
		t.mu.RUnlock()
		if handler != nil {
			handler(data)
		}
	}
}

func (t *WebSocketTransport) writePump(ctx context.Context, conn *websocket.Conn) error {
	var ping <-chan time.Time
	if t.pingInterval > 0 {
		ticker := time.NewTicker(t.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case data := <-t.queue:
			if t.limiter != nil {
				if err := t.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("failed to write frame: %w", err)
			}

		case <-ping:
			deadline := time.Now().Add(t.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("failed to write ping: %w", err)
			}

		case <-t.closing:
			t.mu.RLock()
			msg := websocket.FormatCloseMessage(t.closeCode, t.closeText)
			t.mu.RUnlock()

			deadline := time.Now().Add(t.writeTimeout)
			if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				t.logger.WithErr(err).Debug("Failed to write close frame")
			}
			// the read pump ends once the peer echoes the close frame
			conn.SetReadDeadline(time.Now().Add(closeGracePeriod))
			return nil
		}
	}
}

func (t *WebSocketTransport) closeEvent(err error) CloseEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseEvent{Code: ce.Code, Reason: ce.Text}
	}

	select {
	case <-t.closing:
		t.mu.RLock()
		defer t.mu.RUnlock()
		return CloseEvent{Code: t.closeCode, Reason: t.closeText}
	default:
	}

	if err != nil {
		t.fireError(err)
		return CloseEvent{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
	}
	return CloseEvent{Code: websocket.CloseAbnormalClosure}
}

func (t *WebSocketTransport) fireOpen(event OpenEvent) {
	t.mu.RLock()
	handler := t.onOpen
	t.mu.RUnlock()
	if handler != nil {
		handler(event)
	}
}

func (t *WebSocketTransport) fireClose(event CloseEvent) {
	t.mu.RLock()
	handler := t.onClose
	t.mu.RUnlock()
	if handler != nil {
		handler(event)
	}
}

func (t *WebSocketTransport) fireError(err error) {
	t.mu.RLock()
	handler := t.onError
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}
