package streams

import "sync"

// Concat subscribes to each publisher sequentially, forwarding all items
// in order and completing once the last one completes.
func Concat[T any](ps ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		c := &concatState[T]{down: down, remaining: ps}
		down.OnSubscribe(NewSubscription(c.request, c.cancel))
	})
}

type concatState[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	remaining []Publisher[T]
	curSub    Subscription
	pending   int64
	cancelled bool
	term      terminalGuard
}

func (c *concatState[T]) request(n int64) {
	c.mu.Lock()
	c.pending += n
	if c.curSub != nil {
		sub := c.curSub
		c.mu.Unlock()
		sub.Request(n)
		return
	}
	c.mu.Unlock()
	c.advance()
}

func (c *concatState[T]) advance() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	if len(c.remaining) == 0 {
		c.mu.Unlock()
		if c.term.tryFinish() {
			c.down.OnComplete()
		}
		return
	}
	next := c.remaining[0]
	c.remaining = c.remaining[1:]
	c.mu.Unlock()
	next.Subscribe(&concatSubscriber[T]{c: c})
}

func (c *concatState[T]) cancel() {
	if !c.term.tryFinish() {
		return
	}
	c.mu.Lock()
	c.cancelled = true
	sub := c.curSub
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

type concatSubscriber[T any] struct{ c *concatState[T] }

func (s *concatSubscriber[T]) OnSubscribe(sub Subscription) {
	c := s.c
	c.mu.Lock()
	c.curSub = sub
	n := c.pending
	c.mu.Unlock()
	if n > 0 {
		sub.Request(n)
	}
}

func (s *concatSubscriber[T]) OnNext(v T) {
	s.c.mu.Lock()
	s.c.pending--
	s.c.mu.Unlock()
	s.c.down.OnNext(v)
}

func (s *concatSubscriber[T]) OnComplete() {
	c := s.c
	c.mu.Lock()
	c.curSub = nil
	c.mu.Unlock()
	c.advance()
}

func (s *concatSubscriber[T]) OnError(err error) {
	if s.c.term.tryFinish() {
		s.c.down.OnError(err)
	}
}
