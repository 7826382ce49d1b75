package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer runs handler for every websocket connection.
func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readRequest(t *testing.T, conn *websocket.Conn) map[string]any {
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("server read failed: %v", err)
		return nil
	}
	var req map[string]any
	if err := json.Unmarshal(data, &req); err != nil {
		t.Errorf("server got invalid json: %v", err)
	}
	return req
}

func TestWebSocketTransport_RoundTrip(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		if req == nil {
			return
		}
		id := req["id"]
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": id, "progress": map[string]any{"worked": 1, "total": 2}})
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": id, "response": map[string]any{"method": req["method"]}})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	closed := make(chan CloseEvent, 1)
	opened := make(chan OpenEvent, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Open(ctx, url,
		UseOnOpen(func(e OpenEvent) { opened <- e }),
		UseOnClose(func(e CloseEvent) { closed <- e }),
		UseWebSocketOptions(UsePingInterval(0)),
	)
	require.NoError(t, err)
	assert.Equal(t, url, client.URL())

	select {
	case e := <-opened:
		assert.Equal(t, url, e.URL)
	case <-ctx.Done():
		t.Fatal("open event not fired")
	}

	var mu sync.Mutex
	progressCount := 0
	job := client.Call("get_data_stores", []any{}, func(Progress) {
		mu.Lock()
		progressCount++
		mu.Unlock()
	})

	response, err := job.Wait(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"get_data_stores"}`, string(response))
	mu.Lock()
	assert.Equal(t, 1, progressCount)
	mu.Unlock()

	require.NoError(t, client.Close())
	select {
	case e := <-closed:
		assert.Equal(t, websocket.CloseNormalClosure, e.Code)
	case <-ctx.Done():
		t.Fatal("close event not fired")
	}
}

func TestWebSocketTransport_ServerDropRejectsPending(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		readRequest(t, conn)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	client, err := Open(ctx, url, UseOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))
	require.NoError(t, err)

	job := client.Call("slow", []any{}, nil)
	_, err = job.Wait(ctx)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, ConnectionClosedCode, failure.Code)
	assert.Equal(t, JobFailed, job.Status())
	assert.Equal(t, 0, client.Pending())
}

func TestWebSocketTransport_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var gotErr error
	client, err := Open(ctx, "ws://127.0.0.1:1/app", UseOnError(func(err error) { gotErr = err }))

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Error(t, gotErr)
}

func TestWebSocketTransport_SendBeforeStart(t *testing.T) {
	transport := NewWebSocketTransport("ws://127.0.0.1:1/app")
	assert.ErrorIs(t, transport.Send([]byte("{}")), ErrTransportClosed)
}

func TestWebSocketTransport_CloseBeforeStart(t *testing.T) {
	transport := NewWebSocketTransport("ws://127.0.0.1:1/app")

	var events []CloseEvent
	transport.OnClose(func(e CloseEvent) { events = append(events, e) })

	require.NoError(t, transport.Close(1000, "done"))
	require.NoError(t, transport.Close(1000, "again"))

	assert.Equal(t, []CloseEvent{{Code: 1000, Reason: "done"}}, events)
	assert.ErrorIs(t, transport.Send([]byte("{}")), ErrTransportClosed)
}
