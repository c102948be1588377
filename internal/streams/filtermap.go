package streams

// FilterMap applies f to every upstream item, forwarding the transformed
// value only when f's second return is true. Dropped items consume no
// downstream demand: the stage tops up its upstream request by one for
// every drop so outstanding upstream demand always matches unmet
// downstream demand, preserving invariant 1 without stalling the stream.
func FilterMap[T, U any](upstream Publisher[T], f func(T) (U, bool)) Publisher[U] {
	return PublisherFunc[U](func(down Subscriber[U]) {
		s := &filterMapSubscriber[T, U]{down: down, f: f}
		upstream.Subscribe(s)
	})
}

type filterMapSubscriber[T, U any] struct {
	down Subscriber[U]
	f    func(T) (U, bool)
	up   Subscription
	term terminalGuard
}

func (s *filterMapSubscriber[T, U]) OnSubscribe(up Subscription) {
	s.up = up
	s.down.OnSubscribe(NewSubscription(up.Request, up.Cancel))
}

func (s *filterMapSubscriber[T, U]) OnNext(v T) {
	if s.term.isDone() {
		return
	}
	out, ok := s.f(v)
	if !ok {
		s.up.Request(1)
		return
	}
	s.down.OnNext(out)
}

func (s *filterMapSubscriber[T, U]) OnComplete() {
	if s.term.tryFinish() {
		s.down.OnComplete()
	}
}

func (s *filterMapSubscriber[T, U]) OnError(err error) {
	if s.term.tryFinish() {
		s.down.OnError(err)
	}
}
