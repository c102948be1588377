// Package concurrency provides the cooperative scheduling and
// thread-handoff adapters that sit on top of internal/streams: delay,
// interval pacing, timer/signal breakers, and the two worker adapters that
// own a dedicated goroutine for the life of the stage.
package concurrency

import (
	"sync"
	"time"

	"github.com/videobot/runtime/internal/streams"
)

// Delay buffers items in a FIFO and schedules a timer for the head item
// using f to compute its delay; on fire it emits the head and reschedules
// until the buffer is empty. Cancel stops upstream immediately, but if the
// buffer is non-empty at that point, delivery of the already-buffered
// items (and any latched terminal signal) continues until the buffer
// drains.
func Delay[T any](upstream streams.Publisher[T], f func(T) time.Duration) streams.Publisher[T] {
	return streams.PublisherFunc[T](func(down streams.Subscriber[T]) {
		d := &delayStage[T]{down: down, f: f}
		upstream.Subscribe(d)
	})
}

type delayStage[T any] struct {
	down streams.Subscriber[T]
	f    func(T) time.Duration

	mu        sync.Mutex
	upSub     streams.Subscription
	buffer    []T
	timerSet  bool
	timer     *time.Timer
	completed bool
	err       error
	termSent  bool
	cancelled bool
}

func (d *delayStage[T]) OnSubscribe(sub streams.Subscription) {
	d.mu.Lock()
	d.upSub = sub
	d.mu.Unlock()
	d.down.OnSubscribe(streams.NewSubscription(
		func(n int64) { sub.Request(n) },
		d.cancel,
	))
}

func (d *delayStage[T]) cancel() {
	d.mu.Lock()
	d.cancelled = true
	sub := d.upSub
	empty := len(d.buffer) == 0
	d.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
	if empty {
		d.finishTerminal(nil, false)
	}
}

func (d *delayStage[T]) OnNext(v T) {
	d.mu.Lock()
	d.buffer = append(d.buffer, v)
	shouldArm := !d.timerSet
	d.mu.Unlock()
	if shouldArm {
		d.armNext()
	}
}

func (d *delayStage[T]) armNext() {
	d.mu.Lock()
	if len(d.buffer) == 0 {
		d.timerSet = false
		d.mu.Unlock()
		d.maybeFinishAfterDrain()
		return
	}
	head := d.buffer[0]
	d.timerSet = true
	d.mu.Unlock()

	wait := d.f(head)
	d.timer = time.AfterFunc(wait, func() { d.fire() })
}

func (d *delayStage[T]) fire() {
	d.mu.Lock()
	if len(d.buffer) == 0 {
		d.timerSet = false
		d.mu.Unlock()
		return
	}
	head := d.buffer[0]
	d.buffer = d.buffer[1:]
	d.mu.Unlock()

	d.down.OnNext(head)
	d.armNext()
}

func (d *delayStage[T]) maybeFinishAfterDrain() {
	d.mu.Lock()
	pending := d.completed || d.err != nil
	err := d.err
	d.mu.Unlock()
	if pending {
		d.finishTerminal(err, d.errIsError())
	}
}

func (d *delayStage[T]) errIsError() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err != nil
}

func (d *delayStage[T]) finishTerminal(err error, isErr bool) {
	d.mu.Lock()
	if d.termSent {
		d.mu.Unlock()
		return
	}
	d.termSent = true
	d.mu.Unlock()
	if isErr {
		d.down.OnError(err)
	} else {
		d.down.OnComplete()
	}
}

func (d *delayStage[T]) OnComplete() {
	d.mu.Lock()
	d.completed = true
	empty := len(d.buffer) == 0
	d.mu.Unlock()
	if empty {
		d.finishTerminal(nil, false)
	}
}

func (d *delayStage[T]) OnError(err error) {
	d.mu.Lock()
	d.err = err
	empty := len(d.buffer) == 0
	d.mu.Unlock()
	if empty {
		d.finishTerminal(err, true)
	}
}
