package concurrency

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/videobot/runtime/internal/streams"
)

// signalBreakerRegistered enforces the process-wide singleton: at most one
// signal_breaker may exist per process (invariant 9).
var signalBreakerRegistered atomic.Bool

// SignalBreaker installs a process-level signal handler and wraps upstream
// so that any of the listed signals cancels upstream and sends OnComplete
// downstream. Constructing a second SignalBreaker in the same process
// panics, matching the spec's "aborts during construction" requirement.
func SignalBreaker[T any](upstream streams.Publisher[T], signals ...os.Signal) streams.Publisher[T] {
	if !signalBreakerRegistered.CompareAndSwap(false, true) {
		panic("concurrency: a signal_breaker is already registered for this process")
	}
	return streams.PublisherFunc[T](func(down streams.Subscriber[T]) {
		s := &signalBreakerStage[T]{down: down}
		s.ch = make(chan os.Signal, 1)
		signal.Notify(s.ch, signals...)
		upstream.Subscribe(s)
		go s.watch()
	})
}

// ResetSignalBreakerForTest releases the singleton latch. Test-only: the
// production process never needs to register a second breaker.
func ResetSignalBreakerForTest() { signalBreakerRegistered.Store(false) }

type signalBreakerStage[T any] struct {
	down streams.Subscriber[T]
	sub  streams.Subscription
	ch   chan os.Signal

	mu   sync.Mutex
	done bool
}

func (s *signalBreakerStage[T]) OnSubscribe(sub streams.Subscription) {
	s.sub = sub
	s.down.OnSubscribe(sub)
}

func (s *signalBreakerStage[T]) OnNext(v T) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		return
	}
	s.down.OnNext(v)
}

func (s *signalBreakerStage[T]) OnComplete() {
	s.finish(func() { s.down.OnComplete() })
}

func (s *signalBreakerStage[T]) OnError(err error) {
	s.finish(func() { s.down.OnError(err) })
}

func (s *signalBreakerStage[T]) finish(deliver func()) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	signal.Stop(s.ch)
	deliver()
}

func (s *signalBreakerStage[T]) watch() {
	if _, ok := <-s.ch; !ok {
		return
	}
	s.mu.Lock()
	already := s.done
	s.mu.Unlock()
	if already {
		return
	}
	s.sub.Cancel()
	s.finish(func() { s.down.OnComplete() })
}
