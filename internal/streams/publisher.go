package streams

import "sync/atomic"

// Subscriber receives OnSubscribe exactly once, then any number of OnNext,
// followed by at most one of OnComplete or OnError.
type Subscriber[T any] interface {
	OnSubscribe(sub Subscription)
	OnNext(v T)
	OnComplete()
	OnError(err error)
}

// Publisher exposes Subscribe, the sole entry point for a consumer to
// attach a Subscriber and start receiving items under backpressure.
type Publisher[T any] interface {
	Subscribe(sub Subscriber[T])
}

// PublisherFunc adapts a plain function into a Publisher.
type PublisherFunc[T any] func(sub Subscriber[T])

func (f PublisherFunc[T]) Subscribe(sub Subscriber[T]) { f(sub) }

// terminalGuard ensures OnComplete/OnError fire at most once per
// subscription (spec invariant 2), safe to call from more than one
// goroutine (a cancel racing a terminal event, a timer racing upstream).
type terminalGuard struct {
	done atomic.Bool
}

// tryFinish returns true the first time it is called, false afterwards.
func (g *terminalGuard) tryFinish() bool {
	return g.done.CompareAndSwap(false, true)
}

func (g *terminalGuard) isDone() bool { return g.done.Load() }
