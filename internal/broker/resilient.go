package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/videobot/runtime/internal/errs"
	"github.com/videobot/runtime/internal/streams"
)

// Factory builds a fresh Client instance; ResilientClient calls it once at
// Start and again every time the inner client signals a transport error.
type Factory func() Client

// ResilientClient wraps a Client factory: on any transport error callback
// it tears down the inner client, reconstructs it via the factory, and
// re-subscribes all held subscriptions in insertion order. Realizes
// scenario S6.
type ResilientClient struct {
	factory Factory
	logger  *slog.Logger
	ctx     context.Context

	mu     sync.Mutex
	inner  *WSClient
	closed bool
}

// NewResilientClient wraps factory, which must produce *WSClient values so
// the wrapper can inspect held subscriptions for replay.
func NewResilientClient(factory Factory, logger *slog.Logger) *ResilientClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilientClient{factory: factory, logger: logger}
}

func (r *ResilientClient) Start(ctx context.Context) *streams.Deferred[streams.Void] {
	r.ctx = ctx
	return r.connect(ctx)
}

func (r *ResilientClient) connect(ctx context.Context) *streams.Deferred[streams.Void] {
	c := r.factory()
	wsc, ok := c.(*WSClient)
	if !ok {
		d := streams.NewDeferred[streams.Void]()
		d.Fail(errs.NewStreamInit("broker.resilient", nil))
		return d
	}
	r.mu.Lock()
	r.inner = wsc
	r.mu.Unlock()

	out := streams.NewDeferred[streams.Void]()
	wsc.Start(ctx).On(func(_ streams.Void, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		out.Resolve(streams.Void{})
	})
	return out
}

// handleTransportError is the callback every subscription's OnError wraps:
// on a transport-layer failure it tears down and reconnects once, then
// replays every held subscription.
func (r *ResilientClient) handleTransportError(err error, userCb func(error)) {
	if !errs.IsPipelineError(err) {
		if userCb != nil {
			userCb(err)
		}
		return
	}
	var ae *errs.AsioError
	if !isAsio(err, &ae) {
		if userCb != nil {
			userCb(err)
		}
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	old := r.inner
	r.mu.Unlock()

	r.logger.Warn("broker transport error, reconnecting", "error", err)
	// This runs on old's read goroutine, and Stop waits for that goroutine
	// to exit, so it must not be awaited here.
	go old.Stop()

	held := old.HeldSubscriptions()
	r.connect(r.ctx).On(func(_ streams.Void, connErr error) {
		if connErr != nil {
			if userCb != nil {
				userCb(connErr)
			}
			return
		}
		r.mu.Lock()
		fresh := r.inner
		r.mu.Unlock()
		for _, s := range held {
			if subErr := fresh.Subscribe(s.Channel, s.Handle, s.Cb, s.Opts); subErr != nil && userCb != nil {
				userCb(subErr)
			}
		}
	})
}

func isAsio(err error, target **errs.AsioError) bool {
	for err != nil {
		if ae, ok := err.(*errs.AsioError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (r *ResilientClient) Stop() *streams.Deferred[streams.Void] {
	r.mu.Lock()
	r.closed = true
	inner := r.inner
	r.mu.Unlock()
	if inner == nil {
		d := streams.NewDeferred[streams.Void]()
		d.Resolve(streams.Void{})
		return d
	}
	return inner.Stop()
}

func (r *ResilientClient) Publish(channel string, message any, cb func(error)) {
	r.mu.Lock()
	inner := r.inner
	r.mu.Unlock()
	if inner != nil {
		inner.Publish(channel, message, cb)
	}
}

func (r *ResilientClient) Subscribe(channel, subHandle string, cb SubscribeCallbacks, opts *SubscribeOptions) error {
	wrapped := cb
	wrapped.OnError = func(err error) {
		r.handleTransportError(err, cb.OnError)
	}
	r.mu.Lock()
	inner := r.inner
	r.mu.Unlock()
	if inner == nil {
		return errs.NewBroker(errs.NotConnected, channel, nil)
	}
	return inner.Subscribe(channel, subHandle, wrapped, opts)
}

func (r *ResilientClient) Unsubscribe(subHandle string) error {
	r.mu.Lock()
	inner := r.inner
	r.mu.Unlock()
	if inner == nil {
		return nil
	}
	return inner.Unsubscribe(subHandle)
}
