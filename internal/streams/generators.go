package streams

import "sync"

// NewStatefulGenerator builds a publisher whose values are produced
// synchronously: gen is called once per requested item, mutating state by
// reference, and signals end-of-stream by returning ok=false.  This is
// "generators::stateful" from spec section 4.1.
func NewStatefulGenerator[S, T any](initState S, gen func(state *S) (T, bool, error)) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		state := initState
		ds := newDrainSource[T](down, func() (T, bool, bool, error) {
			v, ok, err := gen(&state)
			if err != nil {
				var zero T
				return zero, false, false, err
			}
			if !ok {
				var zero T
				return zero, false, true, nil
			}
			return v, true, false, nil
		}, nil)
		ds.start()
	})
}

// Emitter bridges a callback-driven producer (a websocket read loop, a
// decoder-ready callback, a worker thread) into a Publisher, realizing
// "generators::async" from spec section 4.1. Push/Complete/Fail may be
// called from any goroutine; the drain loop wakes and re-enters on each
// call. This is the backbone of the broker streams adapters, the
// buffered/threaded worker consumer side, and the paced file/url sources.
type Emitter[T any] struct {
	mu        sync.Mutex
	queue     []T
	completed bool
	err       error
	ds        *drainSource[T]
	onCancel  func()
}

// NewEmitter returns a Publisher driven by the returned Emitter handle.
func NewEmitter[T any]() (Publisher[T], *Emitter[T]) {
	e := &Emitter[T]{}
	pub := PublisherFunc[T](func(down Subscriber[T]) {
		e.mu.Lock()
		e.ds = newDrainSource[T](down, e.produce, e.runCancel)
		ds := e.ds
		e.mu.Unlock()
		ds.start()
	})
	return pub, e
}

// OnCancel registers a callback invoked when the downstream subscription
// is cancelled (e.g. to unsubscribe from a broker channel).
func (e *Emitter[T]) OnCancel(fn func()) {
	e.mu.Lock()
	e.onCancel = fn
	e.mu.Unlock()
}

func (e *Emitter[T]) runCancel() {
	e.mu.Lock()
	fn := e.onCancel
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *Emitter[T]) produce() (T, bool, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) > 0 {
		v := e.queue[0]
		e.queue = e.queue[1:]
		return v, true, false, nil
	}
	if e.err != nil {
		var zero T
		return zero, false, false, e.err
	}
	if e.completed {
		var zero T
		return zero, false, true, nil
	}
	var zero T
	return zero, false, false, nil
}

// Push enqueues a value for delivery once downstream demand allows it.
func (e *Emitter[T]) Push(v T) {
	e.mu.Lock()
	e.queue = append(e.queue, v)
	ds := e.ds
	e.mu.Unlock()
	if ds != nil {
		ds.wake()
	}
}

// Complete marks the stream exhausted once any queued values are drained.
func (e *Emitter[T]) Complete() {
	e.mu.Lock()
	e.completed = true
	ds := e.ds
	e.mu.Unlock()
	if ds != nil {
		ds.wake()
	}
}

// Fail marks the stream terminally failed once any queued values are
// drained (queued values are still delivered first, matching the "errors
// and completion are latched and delivered after drain" rule used by the
// delay adapter).
func (e *Emitter[T]) Fail(err error) {
	e.mu.Lock()
	e.err = err
	ds := e.ds
	e.mu.Unlock()
	if ds != nil {
		ds.wake()
	}
}
