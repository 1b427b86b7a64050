// Package kurento drives a Kurento Media Server over its JSON-RPC 2.0 websocket API.
package kurento

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed = errors.New("kurento: connection closed")
	// ErrDisconnected is returned while the client is redialing a dropped connection.
	ErrDisconnected = errors.New("kurento: disconnected from media server")
)

// RPCError is an error object returned by the media server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("kurento: %s (code %d)", e.Message, e.Code)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type result struct {
	Value     json.RawMessage `json:"value"`
	SessionID string          `json:"sessionId"`
}

type response struct {
	result result
	err    error
}

// Event is the payload of an onEvent notification.
type Event struct {
	Type   string          `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
}

type ClientOptions struct {
	RequestTimeout time.Duration
	PingInterval   time.Duration
	// MinBackoff and MaxBackoff bound the wait between redials after the connection drops.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client is one JSON-RPC session with the media server. Safe for concurrent use.
// A dropped connection is redialed with exponential backoff and the session id is
// presented again, so server-side objects outlive the drop.
type Client struct {
	url  string
	opts ClientOptions

	writeMu sync.Mutex
	seq     atomic.Int64

	mu        sync.Mutex
	conn      *websocket.Conn // nil while redialing
	pending   map[int64]chan response
	listeners map[string]func(Event)
	sessionID string
	closed    bool

	done chan struct{}
}

func Dial(ctx context.Context, url string, opts ClientOptions) (*Client, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	opts.MaxBackoff = max(opts.MaxBackoff, opts.MinBackoff)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("kurento dial %s: %w", url, err)
	}
	c := &Client{
		url:       url,
		conn:      conn,
		opts:      opts,
		pending:   make(map[int64]chan response),
		listeners: make(map[string]func(Event)),
		done:      make(chan struct{}),
	}
	go c.run(conn)
	go c.keepalive()
	log.Info().Str("module", "kurento").Str("url", url).Msg("connected to media server")
	return c, nil
}

// Call sends method with params and waits for the reply's result.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	id := c.seq.Add(1)
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	c.pending[id] = ch
	if c.sessionID != "" && params != nil {
		params["sessionId"] = c.sessionID
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return nil, resp.err
		}
		if resp.result.SessionID != "" {
			c.mu.Lock()
			c.sessionID = resp.result.SessionID
			c.mu.Unlock()
		}
		return resp.result.Value, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("kurento %s: %w", method, ctx.Err())
	case <-c.done:
		return nil, ErrClosed
	}
}

// Listen routes onEvent notifications whose object is objectID to fn until Forget.
func (c *Client) Listen(objectID string, fn func(Event)) {
	c.mu.Lock()
	c.listeners[objectID] = fn
	c.mu.Unlock()
}

func (c *Client) Forget(objectID string) {
	c.mu.Lock()
	delete(c.listeners, objectID)
	c.mu.Unlock()
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Healthy returns nil while the client holds a live connection.
func (c *Client) Healthy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.conn == nil:
		return ErrDisconnected
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.RequestTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// run reads conn until it fails, then redials until the client is closed.
func (c *Client) run(conn *websocket.Conn) {
	for conn != nil {
		err := c.readLoop(conn)
		if !c.disconnect(conn) {
			return
		}
		log.Error().Err(err).Str("module", "kurento").Str("url", c.url).Msg("connection lost")
		conn = c.redial()
	}
}

// disconnect forgets conn and fails every call waiting on it. It reports false
// once the client is closed.
func (c *Client) disconnect(conn *websocket.Conn) bool {
	_ = conn.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		select {
		case ch <- response{err: ErrDisconnected}:
		default:
		}
		delete(c.pending, id)
	}
	return true
}

func (c *Client) redial() *websocket.Conn {
	wait := c.opts.MinBackoff
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return nil
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		cancel()
		if err != nil {
			wait = min(wait*2, c.opts.MaxBackoff)
			log.Warn().Err(err).Str("module", "kurento").Int("attempt", attempt).Dur("retry_in", wait).Msg("redial failed")
			timer.Reset(wait)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		session := c.sessionID
		c.mu.Unlock()
		log.Info().Str("module", "kurento").Str("url", c.url).Str("session", session).Int("attempt", attempt).Msg("reconnected to media server")
		return conn
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "kurento").Msg("bad frame")
			continue
		}
		switch {
		case msg.ID != nil && msg.Method == "":
			c.resolve(*msg.ID, msg)
		case msg.Method == "onEvent":
			c.dispatch(msg.Params)
		default:
			log.Debug().Str("module", "kurento").Str("method", msg.Method).Msg("ignored server message")
		}
	}
}

func (c *Client) resolve(id int64, msg message) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	var resp response
	if msg.Error != nil {
		resp.err = msg.Error
	} else if len(msg.Result) > 0 {
		if err := json.Unmarshal(msg.Result, &resp.result); err != nil {
			resp.err = fmt.Errorf("kurento: decode result: %w", err)
		}
	}
	ch <- resp
}

func (c *Client) dispatch(raw json.RawMessage) {
	var params struct {
		Value Event `json:"value"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		log.Warn().Err(err).Str("module", "kurento").Msg("bad event")
		return
	}
	ev := params.Value
	c.mu.Lock()
	fn := c.listeners[ev.Object]
	c.mu.Unlock()
	if fn == nil {
		log.Debug().Str("module", "kurento").Str("object", ev.Object).Str("type", ev.Type).Msg("event without listener")
		return
	}
	fn(ev)
}

func (c *Client) keepalive() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			interval := c.opts.PingInterval.Milliseconds() * 2
			if _, err := c.Call(context.Background(), "ping", map[string]any{"interval": interval}); err != nil {
				log.Warn().Err(err).Str("module", "kurento").Msg("ping failed")
			}
		}
	}
}
