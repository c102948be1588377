package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/videobot/runtime/internal/errs"
	"github.com/videobot/runtime/internal/streams"
)

// SubscriptionState tracks the ack lifecycle of a held subscription.
type SubscriptionState int

const (
	PendingSubscribe SubscriptionState = iota
	Current
	PendingUnsubscribe
)

// SubscribeOptions configures history replay for a subscription.
type SubscribeOptions struct {
	HistoryAge   int
	HistoryCount int
}

// SubscribeCallbacks are invoked on the client's I/O goroutine.
type SubscribeCallbacks struct {
	OnData  func(messages []json.RawMessage)
	OnError func(err error)
}

// Client is both a command surface (start/stop/publish/subscribe) and an
// event source (data, errors) for a single broker connection.
type Client interface {
	Start(ctx context.Context) *streams.Deferred[streams.Void]
	Stop() *streams.Deferred[streams.Void]
	Publish(channel string, message any, cb func(error))
	Subscribe(channel, subHandle string, cb SubscribeCallbacks, opts *SubscribeOptions) error
	Unsubscribe(subHandle string) error
}

type heldSubscription struct {
	channel string
	opts    *SubscribeOptions
	cb      SubscribeCallbacks
	state   SubscriptionState
}

// WSClient is the concrete gorilla/websocket-backed implementation. Its
// public methods do not check which goroutine they run on; callers needing
// cross-goroutine access should go through ThreadPinned.
type WSClient struct {
	url    string
	logger *slog.Logger

	conn      *websocket.Conn
	nextID    atomic.Int64
	ioThread  atomic.Int64 // goroutine id surrogate; not read or written by any method

	mu      sync.Mutex
	subs    map[string]*heldSubscription
	order   []string // insertion order, for resubscribe-in-order
	pending map[int64]func(error)

	readDone chan struct{}
}

// NewWSClient constructs a client bound to url. Call Start to connect.
func NewWSClient(url string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		url:     url,
		logger:  logger,
		subs:    make(map[string]*heldSubscription),
		pending: make(map[int64]func(error)),
	}
}

func (c *WSClient) Start(ctx context.Context) *streams.Deferred[streams.Void] {
	d := streams.NewDeferred[streams.Void]()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		d.Fail(errs.NewAsio("broker.start", err))
		return d
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.readDone = make(chan struct{})
	go c.readLoop()
	go c.keepalive(conn)
	d.Resolve(streams.Void{})
	return d
}

const (
	pingPeriod = 25 * time.Second
	pongWait   = 60 * time.Second
)

// keepalive pings the connection on an interval, as the wire protocol has
// no application-level heartbeat of its own.
func (c *WSClient) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		live := c.conn == conn
		c.mu.Unlock()
		if !live {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
			return
		}
	}
}

func (c *WSClient) Stop() *streams.Deferred[streams.Void] {
	d := streams.NewDeferred[streams.Void]()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
	if c.readDone != nil {
		<-c.readDone
	}
	d.Resolve(streams.Void{})
	return d
}

func (c *WSClient) send(env outgoingEnvelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errs.NewBroker(errs.NotConnected, "", fmt.Errorf("client not started"))
	}
	b, err := json.Marshal(env)
	if err != nil {
		return errs.NewBroker(errs.InvalidMessage, "", err)
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (c *WSClient) Publish(channel string, message any, cb func(error)) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		if cb != nil {
			cb(errs.NewBroker(errs.InvalidMessage, channel, err))
		}
		return
	}
	body, _ := json.Marshal(publishBody{Channel: channel, Message: msgBytes})
	id := c.nextID.Add(1)
	if cb != nil {
		c.mu.Lock()
		c.pending[id] = cb
		c.mu.Unlock()
	}
	if err := c.send(outgoingEnvelope{Action: actionPublish, ID: &id, Body: body}); err != nil {
		if cb != nil {
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
			cb(errs.NewAsio("broker.publish", err))
		}
	}
}

func (c *WSClient) Subscribe(channel, subHandle string, cb SubscribeCallbacks, opts *SubscribeOptions) error {
	c.mu.Lock()
	if _, exists := c.subs[subHandle]; !exists {
		c.order = append(c.order, subHandle)
	}
	c.subs[subHandle] = &heldSubscription{channel: channel, opts: opts, cb: cb, state: PendingSubscribe}
	c.mu.Unlock()

	var hist *historySpec
	if opts != nil && (opts.HistoryAge > 0 || opts.HistoryCount > 0) {
		hist = &historySpec{Age: opts.HistoryAge, Count: opts.HistoryCount}
	}
	body, _ := json.Marshal(subscribeBody{Channel: channel, SubscriptionID: subHandle, History: hist})
	id := c.nextID.Add(1)
	return c.send(outgoingEnvelope{Action: actionSubscribe, ID: &id, Body: body})
}

func (c *WSClient) Unsubscribe(subHandle string) error {
	c.mu.Lock()
	sub, ok := c.subs[subHandle]
	if ok {
		sub.state = PendingUnsubscribe
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	body, _ := json.Marshal(unsubscribeBody{SubscriptionID: subHandle})
	id := c.nextID.Add(1)
	return c.send(outgoingEnvelope{Action: actionUnsubscribe, ID: &id, Body: body})
}

// HeldSubscriptions returns a snapshot of subscriptions in insertion order,
// used by the resilient wrapper to replay them after reconnect.
func (c *WSClient) HeldSubscriptions() []struct {
	Handle  string
	Channel string
	Cb      SubscribeCallbacks
	Opts    *SubscribeOptions
} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]struct {
		Handle  string
		Channel string
		Cb      SubscribeCallbacks
		Opts    *SubscribeOptions
	}, 0, len(c.order))
	for _, h := range c.order {
		if s, ok := c.subs[h]; ok {
			out = append(out, struct {
				Handle  string
				Channel string
				Cb      SubscribeCallbacks
				Opts    *SubscribeOptions
			}{h, s.channel, s.cb, s.opts})
		}
	}
	return out
}

func (c *WSClient) readLoop() {
	defer close(c.readDone)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.broadcastTransportError(errs.NewAsio("broker.read", err))
			return
		}
		c.handleFrame(data)
	}
}

func (c *WSClient) broadcastTransportError(err error) {
	c.mu.Lock()
	subs := make([]*heldSubscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	}
}

func (c *WSClient) handleFrame(data []byte) {
	var env incomingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.broadcastTransportError(errs.NewBroker(errs.InvalidResponse, "", err))
		return
	}

	switch env.Action {
	case actionSubscribeOK:
		c.resolvePending(env.ID, nil)
	case actionSubscribeErr:
		c.resolvePending(env.ID, errs.NewBroker(errs.SubscribeError, "", fmt.Errorf("%s", env.Body)))
	case actionUnsubscribeOK:
		c.resolvePending(env.ID, nil)
	case actionUnsubscribeErr:
		c.resolvePending(env.ID, errs.NewBroker(errs.UnsubscribeError, "", fmt.Errorf("%s", env.Body)))
	case actionPublishOK:
		c.resolvePending(env.ID, nil)
	case actionPublishErr:
		c.resolvePending(env.ID, errs.NewBroker(errs.PublishError, "", fmt.Errorf("%s", env.Body)))
	case actionSubData:
		var body subscriptionDataBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			c.broadcastTransportError(errs.NewBroker(errs.InvalidResponse, "", err))
			return
		}
		c.mu.Lock()
		sub, ok := c.subs[body.SubscriptionID]
		// Data arriving while PendingUnsubscribe is dropped silently.
		dropped := ok && sub.state == PendingUnsubscribe
		if ok && !dropped {
			sub.state = Current
		}
		c.mu.Unlock()
		if !ok || dropped {
			return
		}
		if sub.cb.OnData != nil {
			sub.cb.OnData(body.Messages)
		}
	case actionSubErr:
		var body subscriptionDataBody
		_ = json.Unmarshal(env.Body, &body)
		c.mu.Lock()
		sub, ok := c.subs[body.SubscriptionID]
		c.mu.Unlock()
		if ok && sub.cb.OnError != nil {
			sub.cb.OnError(errs.NewBroker(errs.SubscriptionError, sub.channel, fmt.Errorf("%s", env.Body)))
		}
	default:
		c.broadcastTransportError(errs.NewBroker(errs.InvalidResponse, "",
			fmt.Errorf("unknown action %q: fatal protocol violation", env.Action)))
	}
}

func (c *WSClient) resolvePending(id *int64, err error) {
	if id == nil {
		return
	}
	c.mu.Lock()
	cb, ok := c.pending[*id]
	delete(c.pending, *id)
	c.mu.Unlock()
	if ok && cb != nil {
		cb(err)
	}
}
