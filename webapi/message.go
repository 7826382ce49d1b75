package webapi

import (
	"encoding/json"
	"fmt"
)

const (
	// ProtocolVersion is the version tag carried by every frame.
	ProtocolVersion = "2.0"

	// CancelMethod is the reserved method a server must implement to cancel
	// the job whose id is passed as {"jobId": id}.
	CancelMethod = "__cancelJob__"

	// CancelledCode is the error code a server sends for a job it has
	// successfully cancelled.
	CancelledCode = 999

	// ConnectionClosedCode rejects jobs still in flight when the transport
	// closes.
	ConnectionClosedCode = -32000

	// TransportErrorCode rejects a job whose request could not be sent.
	TransportErrorCode = -32001
)

// Request is the envelope of a single remote call.
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// outboundFrame is a Request tagged with the protocol version.
type outboundFrame struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

func newOutboundFrame(req Request) outboundFrame {
	params := req.Params
	if params == nil {
		params = []any{}
	}
	return outboundFrame{
		JSONRPC: ProtocolVersion,
		ID:      req.ID,
		Method:  req.Method,
		Params:  params,
	}
}

// inboundFrame is what the server sends back for a request id. Exactly one of
// Response, Progress or Error is expected.
type inboundFrame struct {
	JSONRPC  *string         `json:"jsonrpc,omitempty"`
	ID       json.RawMessage `json:"id"`
	Response json.RawMessage `json:"response,omitempty"`
	Progress *Progress       `json:"progress,omitempty"`
	Error    *Failure        `json:"error,omitempty"`
}

// Progress reports partial work on a job. This is not part of JSON-RPC.
type Progress struct {
	// JobID is filled in by the client; it is not read from the wire.
	JobID   int64    `json:"-"`
	Message string   `json:"message,omitempty"`
	Worked  *float64 `json:"worked,omitempty"`
	Total   *float64 `json:"total,omitempty"`
}

// Fraction returns worked/total, or -1 when either is unknown.
func (p Progress) Fraction() float64 {
	if p.Worked == nil || p.Total == nil || *p.Total <= 0 {
		return -1
	}
	return *p.Worked / *p.Total
}

// Failure is the JSON-RPC error object returned for a failed or cancelled job.
type Failure struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("webapi: %s (code %d)", f.Message, f.Code)
}

// IsCancellation reports whether the failure acknowledges a cancellation.
func (f *Failure) IsCancellation() bool {
	return f != nil && f.Code == CancelledCode
}

// Warning describes an inbound frame the client could not route.
type Warning struct {
	Message string
}

func (w Warning) String() string {
	return w.Message
}
