package streams

import "sync"

// Flatten emits each element of every inner collection individually,
// requesting one more collection from upstream whenever its buffer runs
// dry and downstream still wants items.
func Flatten[T any](upstream Publisher[[]T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&flattenSubscriber[T]{down: down})
	})
}

type flattenSubscriber[T any] struct {
	down            Subscriber[T]
	mu              sync.Mutex
	buf             []T
	requested       int64
	upSub           Subscription
	pendingComplete bool
	term            terminalGuard
}

func (f *flattenSubscriber[T]) OnSubscribe(sub Subscription) {
	f.upSub = sub
	f.down.OnSubscribe(NewSubscription(f.request, func() {
		if f.term.tryFinish() {
			sub.Cancel()
		}
	}))
}

func (f *flattenSubscriber[T]) request(n int64) {
	f.mu.Lock()
	f.requested += n
	f.drainLocked()
}

// drainLocked must be called with f.mu held; it always unlocks exactly
// once before returning.
func (f *flattenSubscriber[T]) drainLocked() {
	for f.requested > 0 && len(f.buf) > 0 {
		v := f.buf[0]
		f.buf = f.buf[1:]
		f.requested--
		f.mu.Unlock()
		f.down.OnNext(v)
		f.mu.Lock()
	}

	needMore := f.requested > 0 && len(f.buf) == 0 && !f.pendingComplete
	doComplete := f.requested > 0 && len(f.buf) == 0 && f.pendingComplete
	f.mu.Unlock()

	if needMore {
		f.upSub.Request(1)
	}
	if doComplete && f.term.tryFinish() {
		f.down.OnComplete()
	}
}

func (f *flattenSubscriber[T]) OnNext(items []T) {
	f.mu.Lock()
	f.buf = append(f.buf, items...)
	f.drainLocked()
}

func (f *flattenSubscriber[T]) OnComplete() {
	f.mu.Lock()
	f.pendingComplete = true
	empty := len(f.buf) == 0
	f.mu.Unlock()
	if empty {
		if f.term.tryFinish() {
			f.down.OnComplete()
		}
	}
}

func (f *flattenSubscriber[T]) OnError(err error) {
	if f.term.tryFinish() {
		f.down.OnError(err)
	}
}
