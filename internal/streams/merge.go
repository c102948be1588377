package streams

import "sync"

// Merge interleaves items from every source as they arrive and completes
// only once all sources have completed. Demand is conserved across
// sources: each unit of downstream request is handed to exactly one
// source's outstanding request at a time, so total delivered items never
// exceed cumulative requested (spec invariant 1).
func Merge[T any](ps ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		if len(ps) == 0 {
			down.OnSubscribe(NoopSubscription)
			down.OnComplete()
			return
		}
		m := &mergeState[T]{
			down:        down,
			subs:        make([]Subscription, len(ps)),
			outstanding: make([]int64, len(ps)),
			remaining:   int32(len(ps)),
		}
		down.OnSubscribe(NewSubscription(m.request, m.cancelAll))
		for idx, p := range ps {
			p.Subscribe(&mergeSubscriber[T]{m: m, idx: idx})
		}
	})
}

type mergeState[T any] struct {
	mu          sync.Mutex
	down        Subscriber[T]
	subs        []Subscription
	outstanding []int64
	demand      int64
	remaining   int32
	term        terminalGuard
}

// armLocked hands one unit of free demand to source i if it has none
// outstanding already. Must be called with m.mu held.
func (m *mergeState[T]) armLocked(i int) bool {
	if m.demand > 0 && m.outstanding[i] == 0 && m.subs[i] != nil {
		m.demand--
		m.outstanding[i] = 1
		return true
	}
	return false
}

func (m *mergeState[T]) request(n int64) {
	m.mu.Lock()
	m.demand += n
	var toArm []int
	for i := range m.subs {
		if m.armLocked(i) {
			toArm = append(toArm, i)
		}
	}
	subs := m.subs
	m.mu.Unlock()
	for _, i := range toArm {
		subs[i].Request(1)
	}
}

func (m *mergeState[T]) cancelAll() {
	if !m.term.tryFinish() {
		return
	}
	m.mu.Lock()
	subs := append([]Subscription(nil), m.subs...)
	m.mu.Unlock()
	for _, s := range subs {
		if s != nil {
			s.Cancel()
		}
	}
}

type mergeSubscriber[T any] struct {
	m   *mergeState[T]
	idx int
}

func (s *mergeSubscriber[T]) OnSubscribe(sub Subscription) {
	m := s.m
	m.mu.Lock()
	m.subs[s.idx] = sub
	arm := m.armLocked(s.idx)
	m.mu.Unlock()
	if arm {
		sub.Request(1)
	}
}

func (s *mergeSubscriber[T]) OnNext(v T) {
	m := s.m
	m.mu.Lock()
	m.outstanding[s.idx] = 0
	arm := m.armLocked(s.idx)
	sub := m.subs[s.idx]
	m.mu.Unlock()

	m.down.OnNext(v)

	if arm {
		sub.Request(1)
	}
}

func (s *mergeSubscriber[T]) OnComplete() {
	m := s.m
	m.mu.Lock()
	m.remaining--
	done := m.remaining <= 0
	m.subs[s.idx] = nil
	m.mu.Unlock()
	if done {
		if m.term.tryFinish() {
			m.down.OnComplete()
		}
	}
}

func (s *mergeSubscriber[T]) OnError(err error) {
	if s.m.term.tryFinish() {
		s.m.down.OnError(err)
	}
}
