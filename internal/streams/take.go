package streams

import "sync"

// Take cancels upstream once n items have been delivered and completes
// downstream (spec invariant 1: never requests more of upstream than the
// remaining budget allows).
func Take[T any](upstream Publisher[T], n int64) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&takeSubscriber[T]{down: down, remaining: n})
	})
}

// Head is Take(upstream, 1).
func Head[T any](upstream Publisher[T]) Publisher[T] {
	return Take(upstream, 1)
}

type takeSubscriber[T any] struct {
	down      Subscriber[T]
	mu        sync.Mutex
	remaining int64
	sub       Subscription
	term      terminalGuard
}

func (s *takeSubscriber[T]) OnSubscribe(sub Subscription) {
	s.mu.Lock()
	s.sub = sub
	n := s.remaining
	s.mu.Unlock()

	if n <= 0 {
		if s.term.tryFinish() {
			sub.Cancel()
			s.down.OnComplete()
		}
		return
	}

	s.down.OnSubscribe(NewSubscription(
		func(req int64) {
			s.mu.Lock()
			cap := s.remaining
			s.mu.Unlock()
			if req > cap {
				req = cap
			}
			if req > 0 {
				sub.Request(req)
			}
		},
		func() {
			if s.term.tryFinish() {
				sub.Cancel()
			}
		},
	))
}

func (s *takeSubscriber[T]) OnNext(v T) {
	if s.term.isDone() {
		return
	}
	s.mu.Lock()
	s.remaining--
	exhausted := s.remaining <= 0
	s.mu.Unlock()

	s.down.OnNext(v)

	if exhausted {
		if s.term.tryFinish() {
			s.sub.Cancel()
			s.down.OnComplete()
		}
	}
}

func (s *takeSubscriber[T]) OnComplete() {
	if s.term.tryFinish() {
		s.down.OnComplete()
	}
}

func (s *takeSubscriber[T]) OnError(err error) {
	if s.term.tryFinish() {
		s.down.OnError(err)
	}
}
