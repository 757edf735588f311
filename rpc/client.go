// Package rpc implements the JSON-RPC 2.0-over-websocket client that
// talks to the Moonraker backend (spec.md §4.B). It owns the single
// logical connection, the pending-call correlation table, server-push
// demultiplexing, and reconnect-with-backoff.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultCallTimeout  = 30 * time.Second
	initialBackoff      = 1 * time.Second
	maxBackoff          = 60 * time.Second
	initialQueryTimeout = 10 * time.Second
)

var (
	// ErrTransport is surfaced to every waiter when the connection drops.
	ErrTransport = errors.New("transport error")
	// ErrTimeout is surfaced when a call's deadline expires.
	ErrTimeout = errors.New("timeout")
	// ErrShutdown is surfaced to waiters when the client is closed.
	ErrShutdown = errors.New("shutdown")
)

// StatusUpdateHandler is invoked with a notify_status_update delta.
type StatusUpdateHandler func(delta map[string]interface{})

// GCodeResponseHandler is invoked with a line from the backend's own
// G-code console channel (notify_gcode_response).
type GCodeResponseHandler func(line string)

// FileListChangedHandler is invoked on notify_filelist_changed.
type FileListChangedHandler func(payload interface{})

// Client is the single logical connection to the Moonraker backend.
type Client struct {
	url string
	log *log.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	connDone chan struct{}
	closed   bool
	nextID   uint32
	pending  map[uint32]chan callResult

	onStatusUpdate  StatusUpdateHandler
	onGCodeResponse GCodeResponseHandler
	onFileList      FileListChangedHandler

	// reconnectNotify fires once per outage, per spec.md §7.
	reconnectNotify func(err error)

	stopCh chan struct{}
	doneCh chan struct{}
}

type callResult struct {
	result interface{}
	err    error
}

// New creates a Client for the given websocket URL. It does not connect
// until Connect or Run is called.
func New(url string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "rpc: ", log.LstdFlags)
	}
	return &Client{
		url:     url,
		log:     logger,
		pending: make(map[uint32]chan callResult),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// OnStatusUpdate registers the State Mirror merge callback.
func (c *Client) OnStatusUpdate(h StatusUpdateHandler) { c.onStatusUpdate = h }

// OnGCodeResponse registers the backend-console forwarding callback.
func (c *Client) OnGCodeResponse(h GCodeResponseHandler) { c.onGCodeResponse = h }

// OnFileListChanged registers the optional file-list cache callback.
func (c *Client) OnFileListChanged(h FileListChangedHandler) { c.onFileList = h }

// OnReconnect registers the single-visible-notification-per-outage callback.
func (c *Client) OnReconnect(h func(err error)) { c.reconnectNotify = h }

// Connect dials the backend once, blocking until success or error. Use
// this for the initial connection so startup can fail fast; Run should
// be called afterwards to maintain the connection with reconnects.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connDone = done
	c.mu.Unlock()
	go c.readLoop(conn, done)
	return nil
}

// Run maintains the connection, reconnecting with exponential backoff on
// failure, until Close is called. It does not return until shutdown.
func (c *Client) Run(reinit func() error) {
	defer close(c.doneCh)
	backoff := initialBackoff
	first := true

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if !first {
			conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
			if err != nil {
				c.log.Printf("reconnect failed: %v", err)
				select {
				case <-time.After(backoff):
				case <-c.stopCh:
					return
				}
				if backoff < maxBackoff {
					backoff *= 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
				}
				continue
			}
			done := make(chan struct{})
			c.mu.Lock()
			c.conn = conn
			c.connDone = done
			c.mu.Unlock()
			go c.readLoop(conn, done)

			if reinit != nil {
				if err := reinit(); err != nil {
					c.log.Printf("re-initialization after reconnect failed: %v", err)
				}
			}
			if c.reconnectNotify != nil {
				c.reconnectNotify(nil)
			}
			backoff = initialBackoff
		}
		first = false

		c.mu.Lock()
		done := c.connDone
		c.mu.Unlock()
		if done == nil {
			continue
		}

		select {
		case <-done:
		case <-c.stopCh:
			return
		}
	}
}

// Close shuts down the client, failing all outstanding waiters.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.stopCh)
	if conn != nil {
		conn.Close()
	}
	<-c.doneCh
}

// Call sends a JSON-RPC request and blocks for its response or the
// default timeout. Foreign-id responses and notifications arriving in
// the meantime are routed elsewhere by the read loop (spec.md §4.B).
func (c *Client) Call(method string, params interface{}) (interface{}, error) {
	return c.CallWithTimeout(method, params, defaultCallTimeout)
}

// CallWithTimeout is Call with an explicit deadline (used for the
// startup subscription query's 10s budget).
func (c *Client) CallWithTimeout(method string, params interface{}, timeout time.Duration) (interface{}, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrTransport
	}
	id := c.nextID
	c.nextID++
	for {
		if _, taken := c.pending[id]; !taken {
			break
		}
		id++
	}
	ch := make(chan callResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := request{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	if err := conn.WriteJSON(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ErrTimeout
	case <-c.stopCh:
		return nil, ErrShutdown
	}
}

// CallContext is Call, additionally aborting the wait (but not the
// outstanding id — it stays pending until a response or the default
// timeout) if ctx is canceled. Used so emergency stop can stop waiting
// on an in-flight call without racing the read loop's own bookkeeping.
func (c *Client) CallContext(ctx context.Context, method string, params interface{}) (interface{}, error) {
	resCh := make(chan callResult, 1)
	go func() {
		res, err := c.Call(method, params)
		resCh <- callResult{result: res, err: err}
	}()

	select {
	case res := <-resCh:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe installs a server-side subscription and returns the initial
// status snapshot (spec.md §4.B).
func (c *Client) Subscribe(objects map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.CallWithTimeout("printer.objects.subscribe", map[string]interface{}{"objects": objects}, initialQueryTimeout)
	if err != nil {
		return nil, err
	}
	return extractStatus(res)
}

// Query performs a one-shot printer.objects.query.
func (c *Client) Query(objects map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.CallWithTimeout("printer.objects.query", map[string]interface{}{"objects": objects}, initialQueryTimeout)
	if err != nil {
		return nil, err
	}
	return extractStatus(res)
}

func extractStatus(res interface{}) (map[string]interface{}, error) {
	m, ok := res.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected query result shape")
	}
	status, ok := m["status"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("query result missing status")
	}
	return status, nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		pending := c.pending
		c.pending = make(map[uint32]chan callResult)
		c.mu.Unlock()

		for _, ch := range pending {
			ch <- callResult{err: ErrTransport}
		}
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Printf("malformed frame: %v", err)
		return
	}

	if env.Method != "" {
		c.handleNotification(env.Method, env.Params)
		return
	}

	if env.ID == nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[*env.ID]
	if ok {
		delete(c.pending, *env.ID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	if env.Error != nil {
		ch <- callResult{err: fmt.Errorf("%s", sanitizeBackendMessage(env.Error.Message))}
		return
	}
	ch <- callResult{result: env.Result}
}

func (c *Client) handleNotification(method string, rawParams json.RawMessage) {
	var params []interface{}
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			c.log.Printf("malformed notification params for %s: %v", method, err)
			return
		}
	}

	switch method {
	case "notify_status_update":
		if len(params) == 0 {
			return
		}
		delta, ok := params[0].(map[string]interface{})
		if !ok {
			return
		}
		if c.onStatusUpdate != nil {
			c.onStatusUpdate(delta)
		}
	case "notify_gcode_response":
		if len(params) == 0 {
			return
		}
		line, ok := params[0].(string)
		if !ok {
			return
		}
		if c.onGCodeResponse != nil {
			c.onGCodeResponse(line)
		}
	case "notify_filelist_changed":
		if len(params) == 0 {
			return
		}
		if c.onFileList != nil {
			c.onFileList(params[0])
		}
	}
}

// sanitizeBackendMessage strips newlines from a backend error message
// before it becomes an "Error:<message>" reply line (spec.md §7).
func sanitizeBackendMessage(msg string) string {
	out := make([]byte, 0, len(msg))
	for i := 0; i < len(msg); i++ {
		switch msg[i] {
		case '\r':
			continue
		case '\n':
			out = append(out, ' ')
		default:
			out = append(out, msg[i])
		}
	}
	return string(out)
}
