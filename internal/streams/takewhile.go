package streams

// TakeWhile cancels upstream and completes downstream the moment pred
// returns false, without forwarding the failing item.
func TakeWhile[T any](upstream Publisher[T], pred func(T) bool) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&takeWhileSubscriber[T]{down: down, pred: pred})
	})
}

type takeWhileSubscriber[T any] struct {
	down Subscriber[T]
	pred func(T) bool
	sub  Subscription
	term terminalGuard
}

func (s *takeWhileSubscriber[T]) OnSubscribe(sub Subscription) {
	s.sub = sub
	s.down.OnSubscribe(sub)
}

func (s *takeWhileSubscriber[T]) OnNext(v T) {
	if s.term.isDone() {
		return
	}
	if !s.pred(v) {
		if s.term.tryFinish() {
			s.sub.Cancel()
			s.down.OnComplete()
		}
		return
	}
	s.down.OnNext(v)
}

func (s *takeWhileSubscriber[T]) OnComplete() {
	if s.term.tryFinish() {
		s.down.OnComplete()
	}
}

func (s *takeWhileSubscriber[T]) OnError(err error) {
	if s.term.tryFinish() {
		s.down.OnError(err)
	}
}
