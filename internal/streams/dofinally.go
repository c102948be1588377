package streams

// DoFinally invokes fn exactly once on any terminal transition: complete,
// error, or cancel.
func DoFinally[T any](upstream Publisher[T], fn func()) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&doFinallySubscriber[T]{down: down, fn: fn})
	})
}

type doFinallySubscriber[T any] struct {
	down Subscriber[T]
	fn   func()
	term terminalGuard
}

func (s *doFinallySubscriber[T]) finish() {
	if s.term.tryFinish() {
		s.fn()
	}
}

func (s *doFinallySubscriber[T]) OnSubscribe(sub Subscription) {
	s.down.OnSubscribe(NewSubscription(sub.Request, func() {
		sub.Cancel()
		s.finish()
	}))
}

func (s *doFinallySubscriber[T]) OnNext(v T) { s.down.OnNext(v) }

func (s *doFinallySubscriber[T]) OnComplete() {
	s.finish()
	s.down.OnComplete()
}

func (s *doFinallySubscriber[T]) OnError(err error) {
	s.finish()
	s.down.OnError(err)
}
