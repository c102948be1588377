package streams

import "sync"

// FlatMap subscribes to inner publishers serially: demand from downstream
// is forwarded to the active inner stream first; when an inner publisher
// completes, the next outer item is requested; the output completes once
// the outer publisher has completed and its last inner publisher has too.
func FlatMap[T, U any](upstream Publisher[T], f func(T) Publisher[U]) Publisher[U] {
	return PublisherFunc[U](func(down Subscriber[U]) {
		fm := &flatMapSubscriber[T, U]{down: down, f: f}
		upstream.Subscribe(fm)
	})
}

type flatMapSubscriber[T, U any] struct {
	down          Subscriber[U]
	f             func(T) Publisher[U]
	mu            sync.Mutex
	upSub         Subscription
	innerSub      Subscription
	pendingDemand int64
	outerComplete bool
	innerActive   bool
	term          terminalGuard
}

func (s *flatMapSubscriber[T, U]) OnSubscribe(sub Subscription) {
	s.upSub = sub
	s.down.OnSubscribe(NewSubscription(s.request, s.cancel))
}

func (s *flatMapSubscriber[T, U]) request(n int64) {
	s.mu.Lock()
	s.pendingDemand += n
	inner := s.innerSub
	active := s.innerActive
	s.mu.Unlock()

	if active && inner != nil {
		inner.Request(n)
	} else {
		s.upSub.Request(1)
	}
}

func (s *flatMapSubscriber[T, U]) cancel() {
	if !s.term.tryFinish() {
		return
	}
	s.mu.Lock()
	inner := s.innerSub
	s.mu.Unlock()
	if inner != nil {
		inner.Cancel()
	}
	s.upSub.Cancel()
}

func (s *flatMapSubscriber[T, U]) OnNext(v T) {
	s.mu.Lock()
	s.innerActive = true
	s.mu.Unlock()
	s.f(v).Subscribe(&flatMapInner[T, U]{parent: s})
}

func (s *flatMapSubscriber[T, U]) OnComplete() {
	s.mu.Lock()
	s.outerComplete = true
	active := s.innerActive
	s.mu.Unlock()
	if !active {
		if s.term.tryFinish() {
			s.down.OnComplete()
		}
	}
}

func (s *flatMapSubscriber[T, U]) OnError(err error) {
	if s.term.tryFinish() {
		s.down.OnError(err)
	}
}

type flatMapInner[T, U any] struct {
	parent *flatMapSubscriber[T, U]
}

func (i *flatMapInner[T, U]) OnSubscribe(sub Subscription) {
	p := i.parent
	p.mu.Lock()
	p.innerSub = sub
	n := p.pendingDemand
	p.mu.Unlock()
	if n > 0 {
		sub.Request(n)
	}
}

func (i *flatMapInner[T, U]) OnNext(v U) {
	p := i.parent
	p.mu.Lock()
	p.pendingDemand--
	p.mu.Unlock()
	p.down.OnNext(v)
}

func (i *flatMapInner[T, U]) OnComplete() {
	p := i.parent
	p.mu.Lock()
	p.innerActive = false
	p.innerSub = nil
	outerDone := p.outerComplete
	p.mu.Unlock()

	if outerDone {
		if p.term.tryFinish() {
			p.down.OnComplete()
		}
		return
	}
	p.upSub.Request(1)
}

func (i *flatMapInner[T, U]) OnError(err error) {
	if i.parent.term.tryFinish() {
		i.parent.down.OnError(err)
	}
}
