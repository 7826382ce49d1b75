package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shaharia-lab/cate/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const closeNormal = 1000

// Client submits requests to a Cate WebAPI server and routes the frames it
// receives back to the Job of each request.
type Client struct {
	id        string
	url       string
	transport Transport
	logger    observability.Logger
	validator *frameValidator

	// sendMu keeps frames on the wire in id order.
	sendMu sync.Mutex

	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*Job

	hooksMu   sync.RWMutex
	onOpen    func(OpenEvent)
	onClose   func(CloseEvent)
	onError   func(error)
	onWarning func(Warning)
}

// NewClient creates a client on top of transport and installs its event
// handlers. The transport is not started; call Start for that.
func NewClient(transport Transport, opts ...ClientConfigOption) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Client{
		id:        uuid.NewString(),
		url:       cfg.url,
		transport: transport,
		nextID:    cfg.firstMessageID,
		jobs:      make(map[int64]*Job),
		onOpen:    cfg.onOpen,
		onClose:   cfg.onClose,
		onError:   cfg.onError,
		onWarning: cfg.onWarning,
	}
	c.logger = cfg.logger.WithFields(map[string]interface{}{"webapi_client": c.id})

	if cfg.frameValidation {
		validator, err := newFrameValidator()
		if err != nil {
			c.logger.WithErr(err).Error("Frame validation disabled")
		} else {
			c.validator = validator
		}
	}

	transport.OnOpen(c.handleOpen)
	transport.OnClose(c.handleClose)
	transport.OnError(c.handleError)
	transport.OnMessage(c.handleMessage)

	return c
}

// Open connects to the WebSocket endpoint at url and returns a started client.
func Open(ctx context.Context, url string, opts ...ClientConfigOption) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	wsOpts := append([]WebSocketOption{UseTransportLogger(cfg.logger)}, cfg.webSocketOptions...)
	transport := NewWebSocketTransport(url, wsOpts...)

	c := NewClient(transport, append(opts[:len(opts):len(opts)], UseURL(url))...)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to open webapi at %s: %w", url, err)
	}
	return c, nil
}

// ID returns the client's session id.
func (c *Client) ID() string {
	return c.id
}

// URL returns the service URL, if known.
func (c *Client) URL() string {
	return c.url
}

// Start starts the underlying transport.
func (c *Client) Start(ctx context.Context) error {
	c.logger.Infof("Connecting to Cate WebAPI %s", c.url)
	return c.transport.Start(ctx)
}

// Close closes the transport. Jobs still in flight are rejected with
// ConnectionClosedCode once the transport reports the close.
func (c *Client) Close() error {
	return c.transport.Close(closeNormal, "")
}

// OnOpen sets the hook called when the transport opens.
func (c *Client) OnOpen(fn func(OpenEvent)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onOpen = fn
}

// OnClose sets the hook called when the transport closes.
func (c *Client) OnClose(fn func(CloseEvent)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onClose = fn
}

// OnError sets the hook called on transport errors.
func (c *Client) OnError(fn func(error)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onError = fn
}

// OnWarning sets the hook called for every inbound frame that is discarded.
func (c *Client) OnWarning(fn func(Warning)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onWarning = fn
}

// Pending returns the number of jobs awaiting a terminal frame.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// Call submits method with params, which is either a positional list or a
// struct/map of named parameters. Exactly one frame is sent per call.
func (c *Client) Call(method string, params any, onProgress ProgressHandler) *Job {
	return c.CallContext(context.Background(), method, params, onProgress)
}

// CallContext is like Call; ctx parents the job's tracing span.
func (c *Client) CallContext(ctx context.Context, method string, params any, onProgress ProgressHandler) *Job {
	c.sendMu.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	_, span := observability.StartSpan(ctx, "webapi.Call", trace.WithAttributes(
		attribute.String("webapi.method", method),
		attribute.Int64("webapi.job.id", id),
	))
	job := newJob(c, Request{ID: id, Method: method, Params: params}, onProgress, span)
	c.jobs[id] = job
	c.mu.Unlock()

	data, err := json.Marshal(newOutboundFrame(job.request))
	if err == nil {
		c.logger.Debugf("Sending frame: %s", data)
		err = c.transport.Send(data)
	}
	c.sendMu.Unlock()

	if err != nil {
		c.logger.WithErr(err).Errorf("Failed to send request %d (%s)", id, method)
		c.mu.Lock()
		delete(c.jobs, id)
		c.mu.Unlock()
		job.notifyFailure(&Failure{
			Code:    TransportErrorCode,
			Message: fmt.Sprintf("failed to send request: %v", err),
		})
		return job
	}

	job.markSubmitted()
	return job
}

// CancelJob asks the server to cancel the job with the given id.
func (c *Client) CancelJob(jobID int64) *Job {
	return c.Call(CancelMethod, map[string]int64{"jobId": jobID}, nil)
}

type frameKind int

const (
	frameNone frameKind = iota
	frameResponse
	frameProgress
	frameError
)

func (f *inboundFrame) kind() frameKind {
	switch {
	case len(f.Response) > 0:
		return frameResponse
	case f.Progress != nil:
		return frameProgress
	case f.Error != nil:
		return frameError
	default:
		return frameNone
	}
}

// id accepts any JSON number with an integral value, so 3 and 3.0 route to
// the same job.
func (f *inboundFrame) id() (int64, bool) {
	raw := strings.TrimSpace(string(f.ID))
	if raw == "" || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, false
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func (c *Client) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("Recovered from panic while handling frame: %v", r)
		}
	}()

	c.logger.Debugf("Received frame: %s", data)

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.warn(fmt.Sprintf("Received invalid Cate WebAPI message (%v). Ignoring it.", err))
		return
	}

	if c.validator != nil {
		if err := c.validator.validate(data); err != nil {
			c.warn(fmt.Sprintf("Received invalid Cate WebAPI message (%v). Ignoring it.", err))
			return
		}
	}

	id, ok := frame.id()
	if !ok || (frame.JSONRPC != nil && *frame.JSONRPC != ProtocolVersion) {
		c.warn(fmt.Sprintf("Received invalid Cate WebAPI message (id: %s). Ignoring it.", frame.ID))
		return
	}

	kind := frame.kind()

	c.mu.Lock()
	job, exists := c.jobs[id]
	if exists && (kind == frameResponse || kind == frameError) {
		delete(c.jobs, id)
	}
	c.mu.Unlock()

	if !exists {
		c.warn(fmt.Sprintf("Received Cate WebAPI message (id: %d), which does not have an associated job. Ignoring it.", id))
		return
	}

	switch kind {
	case frameResponse:
		job.notifyDone(frame.Response)
	case frameProgress:
		job.notifyProgress(*frame.Progress)
	case frameError:
		job.notifyFailure(frame.Error)
	default:
		c.warn(fmt.Sprintf("Received invalid Cate WebAPI message (id: %d), which is neither a response, progress, nor error. Ignoring it.", id))
	}
}

func (c *Client) handleOpen(event OpenEvent) {
	c.logger.Info("Cate WebAPI connection opened")

	c.hooksMu.RLock()
	fn := c.onOpen
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(event)
	}
}

func (c *Client) handleClose(event CloseEvent) {
	c.mu.Lock()
	pending := make([]*Job, 0, len(c.jobs))
	for id, job := range c.jobs {
		pending = append(pending, job)
		delete(c.jobs, id)
	}
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"code":         event.Code,
		"reason":       event.Reason,
		"pending_jobs": len(pending),
	}).Info("Cate WebAPI connection closed")

	for _, job := range pending {
		job.notifyFailure(&Failure{Code: ConnectionClosedCode, Message: "connection closed"})
	}

	c.hooksMu.RLock()
	fn := c.onClose
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(event)
	}
}

func (c *Client) handleError(err error) {
	c.logger.WithErr(err).Error("Cate WebAPI transport error")

	c.hooksMu.RLock()
	fn := c.onError
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) warn(message string) {
	c.logger.Warn(message)

	c.hooksMu.RLock()
	fn := c.onWarning
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(Warning{Message: message})
	}
}
