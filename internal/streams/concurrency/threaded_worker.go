package concurrency

import (
	"sync"

	"github.com/videobot/runtime/internal/streams"
)

// ThreadedWorker transforms a Publisher[T] into a Publisher[[]T]: a single
// dedicated consumer goroutine collects items pushed by upstream into an
// unbounded, condition-variable-protected queue and, once downstream has
// demand, delivers everything collected since the last delivery as one
// batch. Unlike BufferedWorker, nothing is ever dropped here — loss only
// happens if a BufferedWorker sits upstream of this one.
func ThreadedWorker[T any](name string, upstream streams.Publisher[T]) streams.Publisher[[]T] {
	return streams.PublisherFunc[[]T](func(down streams.Subscriber[[]T]) {
		w := &threadedWorker[T]{name: name, down: down}
		w.cond = sync.NewCond(&w.mu)
		upstream.Subscribe(w)
		go w.run()
	})
}

type threadedWorker[T any] struct {
	name string
	down streams.Subscriber[[]T]

	upSub streams.Subscription

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []T
	demand    int64
	cancelled bool
	completed bool
	err       error
	term      bool
}

func (w *threadedWorker[T]) OnSubscribe(sub streams.Subscription) {
	w.upSub = sub
	w.down.OnSubscribe(streams.NewSubscription(w.request, w.cancel))
}

func (w *threadedWorker[T]) request(n int64) {
	w.mu.Lock()
	w.demand += n
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *threadedWorker[T]) cancel() {
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

func (w *threadedWorker[T]) OnNext(v T) {
	w.mu.Lock()
	w.pending = append(w.pending, v)
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *threadedWorker[T]) OnComplete() {
	w.mu.Lock()
	w.completed = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *threadedWorker[T]) OnError(err error) {
	w.mu.Lock()
	w.err = err
	w.cond.Broadcast()
	w.mu.Unlock()
}

// readyLocked reports whether the worker has something to do: a batch to
// deliver, a terminal signal to forward (once pending drains), or a
// cancellation to honor. Must be called with w.mu held.
func (w *threadedWorker[T]) readyLocked() bool {
	if w.cancelled {
		return true
	}
	if w.demand > 0 && len(w.pending) > 0 {
		return true
	}
	if len(w.pending) == 0 && (w.err != nil || w.completed) {
		return true
	}
	return false
}

// run is the worker's dedicated goroutine.
func (w *threadedWorker[T]) run() {
	for {
		w.mu.Lock()
		for !w.readyLocked() {
			w.cond.Wait()
		}
		if w.cancelled {
			w.mu.Unlock()
			return
		}
		if w.demand > 0 && len(w.pending) > 0 {
			batch := w.pending
			w.pending = nil
			w.demand--
			w.mu.Unlock()
			w.down.OnNext(batch)
			continue
		}
		if len(w.pending) == 0 {
			if w.err != nil {
				err := w.err
				if !w.term {
					w.term = true
					w.mu.Unlock()
					w.down.OnError(err)
					return
				}
				w.mu.Unlock()
				return
			}
			if w.completed {
				if !w.term {
					w.term = true
					w.mu.Unlock()
					w.down.OnComplete()
					return
				}
				w.mu.Unlock()
				return
			}
		}
		w.mu.Unlock()
	}
}
