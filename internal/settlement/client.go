/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	methodNextIndex = "system_accountNextIndex"
	methodSubmit    = "author_submitAndWatchExtrinsic"
	methodUnwatch   = "author_unwatchExtrinsic"
	methodUpdate    = "author_extrinsicUpdate"

	writeWait           = 10 * time.Second
	defaultPingInterval = 20 * time.Second
	defaultMaxReconnect = 30 * time.Second
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type notificationParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type callResult struct {
	msg rpcMessage
	err error
}

type pendingCall struct {
	response chan callResult
	sub      *Subscription
}

// WSClient talks JSON-RPC 2.0 to a ledger node over a websocket. It owns one
// connection at a time and replaces it with exponential backoff when it drops.
type WSClient struct {
	url          string
	dialer       *websocket.Dialer
	maxReconnect time.Duration
	pingInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]*pendingCall
	subs    map[string]*Subscription

	writeMu sync.Mutex
	nextID  atomic.Uint64
	ready   atomic.Bool
}

type Option func(*WSClient)

// WithMaxReconnectInterval caps the wait between reconnect attempts.
func WithMaxReconnectInterval(d time.Duration) Option {
	return func(c *WSClient) {
		if d > 0 {
			c.maxReconnect = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *WSClient) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// Dial connects to the node and starts the connection supervisor. The first
// connection must succeed; later drops are repaired in the background.
func Dial(ctx context.Context, url string, opts ...Option) (*WSClient, error) {
	c := &WSClient{
		url:          url,
		dialer:       websocket.DefaultDialer,
		maxReconnect: defaultMaxReconnect,
		pingInterval: defaultPingInterval,
		pending:      make(map[uint64]*pendingCall),
		subs:         make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	conn, err := c.connect(ctx)
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("failed to connect to settlement node %s: %w", url, err)
	}
	logrus.WithField("url", url).Info("connected to settlement node")

	c.wg.Add(1)
	go c.supervise(conn)
	return c, nil
}

// Ready reports whether a live connection to the node is held.
func (c *WSClient) Ready() bool {
	return c.ready.Load() && c.ctx.Err() == nil
}

// NextSequence asks the node for the next sequence number of account.
func (c *WSClient) NextSequence(ctx context.Context, account string) (uint64, error) {
	raw, err := c.call(ctx, methodNextIndex, []interface{}{account}, nil)
	if err != nil {
		return 0, err
	}

	var next uint64
	if err := json.Unmarshal(raw, &next); err != nil {
		return 0, fmt.Errorf("unexpected %s result %s: %w", methodNextIndex, string(raw), err)
	}
	return next, nil
}

// Submit sends a signed transfer and watches it. The returned subscription receives
// the node's status updates until a terminal one arrives or it is closed.
func (c *WSClient) Submit(ctx context.Context, transfer *SignedTransfer) (*Subscription, error) {
	sub := NewSubscription(nil)
	sub.txHash = transfer.Hash

	raw, err := c.call(ctx, methodSubmit, []interface{}{transfer.Extrinsic}, sub)
	if err != nil {
		return nil, err
	}
	if subscriptionID(raw) == "" {
		return nil, fmt.Errorf("node returned no subscription for %s", transfer.Hash)
	}
	return sub, nil
}

// Close stops the supervisor and closes the connection. Calls made afterwards fail
// with ErrClosed.
func (c *WSClient) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = conn.Close()
	}

	c.wg.Wait()
	return nil
}

func (c *WSClient) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	if c.ctx.Err() != nil {
		_ = conn.Close()
		return nil, ErrClosed
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.ready.Store(true)
	return conn, nil
}

func (c *WSClient) supervise(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.serve(conn)
		c.teardown(conn)
		if c.ctx.Err() != nil {
			return
		}
		logrus.WithError(err).WithField("url", c.url).Warn("settlement connection lost, reconnecting")

		conn, err = c.reconnect()
		if err != nil {
			return
		}
		logrus.WithField("url", c.url).Info("settlement connection re-established")
	}
}

func (c *WSClient) reconnect() (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = c.maxReconnect
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = c.connect(c.ctx)
		if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, c.ctx), func(err error, next time.Duration) {
		logrus.WithError(err).WithField("retry_in", next).Warn("settlement reconnect failed")
	})
	return conn, err
}

// serve reads from conn until it fails, routing responses to their callers and
// status updates to their subscriptions.
func (c *WSClient) serve(conn *websocket.Conn) error {
	pongWait := 3 * c.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go c.keepAlive(conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logrus.WithError(err).Warn("discarding malformed message from settlement node")
			continue
		}
		c.route(msg)
	}
}

func (c *WSClient) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *WSClient) route(msg rpcMessage) {
	if msg.ID != nil {
		c.mu.Lock()
		call, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		if ok && call.sub != nil && msg.Error == nil {
			// Registered before the caller hears back so no update can slip past.
			if id := subscriptionID(msg.Result); id != "" {
				c.subs[id] = call.sub
				call.sub.setUnsubscribe(func() { c.unwatch(id) })
			}
		}
		c.mu.Unlock()
		if ok {
			call.response <- callResult{msg: msg}
		}
		return
	}

	if msg.Method != methodUpdate {
		return
	}

	var params notificationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		logrus.WithError(err).Warn("discarding malformed extrinsic update")
		return
	}
	id := subscriptionID(params.Subscription)

	c.mu.Lock()
	sub := c.subs[id]
	c.mu.Unlock()
	if sub == nil {
		return
	}

	event, ok := parseStatus(params.Result)
	if !ok {
		return
	}
	event.TxHash = sub.TxHash()
	sub.Push(event)

	if event.Kind.IsTerminal() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// teardown fails everything bound to a dead connection. Watched transfers end with
// an unknown outcome since their fate can no longer be observed.
func (c *WSClient) teardown(conn *websocket.Conn) {
	c.ready.Store(false)
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	subs := c.subs
	c.pending = make(map[uint64]*pendingCall)
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	for _, call := range pending {
		call.response <- callResult{err: ErrNotConnected}
	}
	for _, sub := range subs {
		sub.Push(StatusEvent{Kind: EventUnknown, TxHash: sub.TxHash(), Reason: "connection to settlement node lost"})
	}
}

func (c *WSClient) call(ctx context.Context, method string, params []interface{}, sub *Subscription) (json.RawMessage, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := c.nextID.Add(1)
	call := &pendingCall{response: make(chan callResult, 1), sub: sub}
	c.pending[id] = call
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case res := <-call.response:
		if res.err != nil {
			return nil, res.err
		}
		if res.msg.Error != nil {
			return nil, res.msg.Error
		}
		return res.msg.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

func (c *WSClient) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WSClient) unwatch(id string) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()

	if !c.Ready() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, writeWait)
		defer cancel()
		if _, err := c.call(ctx, methodUnwatch, []interface{}{id}, nil); err != nil {
			logrus.WithError(err).WithField("subscription", id).Debug("failed to unwatch extrinsic")
		}
	}()
}

// subscriptionID accepts both string and numeric subscription ids.
func subscriptionID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// parseStatus maps a node transaction status onto an event. Bare strings such as
// "ready" and objects such as {"inBlock": "0x.."} are both accepted.
func parseStatus(raw json.RawMessage) (StatusEvent, bool) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		switch name {
		case "ready", "future", "broadcast":
			return StatusEvent{Kind: EventReady}, true
		case "dropped":
			return StatusEvent{Kind: EventDropped}, true
		case "invalid", "usurped":
			return StatusEvent{Kind: EventInvalid}, true
		}
		return StatusEvent{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return StatusEvent{}, false
	}

	if v, ok := fields["inBlock"]; ok {
		return StatusEvent{Kind: EventIncluded, BlockHash: unquote(v)}, true
	}
	if v, ok := fields["finalized"]; ok {
		return StatusEvent{Kind: EventFinalized, BlockHash: unquote(v)}, true
	}
	if v, ok := fields["extrinsicFailed"]; ok {
		var failure struct {
			BlockHash string `json:"blockHash"`
			Reason    string `json:"reason"`
		}
		_ = json.Unmarshal(v, &failure)
		return StatusEvent{Kind: EventExtrinsicFailed, BlockHash: failure.BlockHash, Reason: failure.Reason}, true
	}
	if v, ok := fields["usurped"]; ok {
		return StatusEvent{Kind: EventInvalid, Reason: "usurped by " + unquote(v)}, true
	}
	if v, ok := fields["finalityTimeout"]; ok {
		return StatusEvent{Kind: EventUnknown, BlockHash: unquote(v), Reason: "finality timeout"}, true
	}
	if _, ok := fields["broadcast"]; ok {
		return StatusEvent{Kind: EventReady}, true
	}
	return StatusEvent{}, false
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
