package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/videobot/runtime/internal/streams"
)

// ctrlMsgKind tags the control-channel variant: error or complete.
// Only the data path (on_next) is capacity-bounded and drop-on-overflow;
// control signals are each delivered at most once and are never dropped.
type ctrlMsgKind int

const (
	ctrlComplete ctrlMsgKind = iota
	ctrlError
)

// BufferedWorker owns a single dedicated consumer goroutine for its
// lifetime. The producer side (upstream OnNext) calls a non-blocking
// try_send against a capacity-bounded queue: when full, the item is
// dropped and Dropped is incremented rather than blocking the caller or
// the upstream. The consumer goroutine only pulls an item off that queue
// once downstream demand allows it, so delivered items still respect
// invariant 1 even though the queue itself is not demand-gated. On cancel
// or completion the worker goroutine exits and the instance is done.
type BufferedWorker[T any] struct {
	Name     string
	Dropped  atomic.Int64
	Received atomic.Int64

	data  chan T
	ctrl  chan ctrlMsgKind
	errCh chan error

	down  streams.Subscriber[T]
	upSub streams.Subscription

	mu        sync.Mutex
	cond      *sync.Cond
	demand    int64
	cancelled bool
	term      bool
}

// NewBufferedWorker wraps upstream so every item crosses onto a dedicated
// goroutine through a capacity-bounded drop-on-overflow queue.
func NewBufferedWorker[T any](name string, capacity int, upstream streams.Publisher[T]) streams.Publisher[T] {
	return streams.PublisherFunc[T](func(down streams.Subscriber[T]) {
		w := &BufferedWorker[T]{
			Name:  name,
			data:  make(chan T, capacity),
			ctrl:  make(chan ctrlMsgKind, 1),
			errCh: make(chan error, 1),
			down:  down,
		}
		w.cond = sync.NewCond(&w.mu)
		upstream.Subscribe(w)
		go w.run()
	})
}

func (w *BufferedWorker[T]) OnSubscribe(sub streams.Subscription) {
	w.upSub = sub
	w.down.OnSubscribe(streams.NewSubscription(w.request, w.cancel))
}

func (w *BufferedWorker[T]) request(n int64) {
	w.mu.Lock()
	w.demand += n
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *BufferedWorker[T]) cancel() {
	w.mu.Lock()
	already := w.cancelled
	w.cancelled = true
	w.cond.Broadcast()
	w.mu.Unlock()
	if already {
		return
	}
	if w.upSub != nil {
		w.upSub.Cancel()
	}
}

func (w *BufferedWorker[T]) OnNext(v T) {
	w.Received.Add(1)
	select {
	case w.data <- v:
	default:
		w.Dropped.Add(1)
	}
}

func (w *BufferedWorker[T]) OnComplete() {
	w.ctrl <- ctrlComplete
	w.wake()
}

func (w *BufferedWorker[T]) OnError(err error) {
	w.errCh <- err
	w.ctrl <- ctrlError
	w.wake()
}

// wake nudges the consumer loop out of cond.Wait so it notices a pending
// control message even when no demand has ever been requested.
func (w *BufferedWorker[T]) wake() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// run is the worker's dedicated goroutine: it owns all downstream
// invocations and all demand bookkeeping for the life of the stage.
func (w *BufferedWorker[T]) run() {
	for {
		w.mu.Lock()
		for w.demand <= 0 && !w.cancelled {
			select {
			case k := <-w.ctrl:
				w.mu.Unlock()
				w.deliverCtrl(k)
				return
			default:
			}
			w.cond.Wait()
		}
		cancelled := w.cancelled
		w.mu.Unlock()
		if cancelled {
			return
		}

		select {
		case v := <-w.data:
			w.mu.Lock()
			w.demand--
			w.mu.Unlock()
			w.down.OnNext(v)
		case k := <-w.ctrl:
			w.deliverCtrl(k)
			return
		}
	}
}

func (w *BufferedWorker[T]) deliverCtrl(k ctrlMsgKind) {
	w.mu.Lock()
	if w.term {
		w.mu.Unlock()
		return
	}
	w.term = true
	w.mu.Unlock()
	switch k {
	case ctrlComplete:
		w.down.OnComplete()
	case ctrlError:
		w.down.OnError(<-w.errCh)
	}
}
