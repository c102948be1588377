package streams

// Map applies f to every item, forwarding completion/error unchanged.
func Map[T, U any](upstream Publisher[T], f func(T) U) Publisher[U] {
	return PublisherFunc[U](func(down Subscriber[U]) {
		upstream.Subscribe(&mapSubscriber[T, U]{down: down, f: f})
	})
}

type mapSubscriber[T, U any] struct {
	down Subscriber[U]
	f    func(T) U
	term terminalGuard
}

func (s *mapSubscriber[T, U]) OnSubscribe(sub Subscription) { s.down.OnSubscribe(sub) }

func (s *mapSubscriber[T, U]) OnNext(v T) {
	if s.term.isDone() {
		return
	}
	s.down.OnNext(s.f(v))
}

func (s *mapSubscriber[T, U]) OnComplete() {
	if s.term.tryFinish() {
		s.down.OnComplete()
	}
}

func (s *mapSubscriber[T, U]) OnError(err error) {
	if s.term.tryFinish() {
		s.down.OnError(err)
	}
}
