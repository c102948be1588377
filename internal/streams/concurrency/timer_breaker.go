package concurrency

import (
	"sync/atomic"
	"time"
)

// TimerBreaker starts a clock at construction time (approximating
// "subscribe time" for the stage that constructs it immediately before
// subscribing) and flips to expired once its duration elapses. Pair with
// streams.TakeWhile(pub, Alive[T](breaker)) to cancel a stream after a fixed
// duration.
type TimerBreaker struct {
	expired atomic.Bool
	timer   *time.Timer
}

// NewTimerBreaker starts the timer immediately.
func NewTimerBreaker(d time.Duration) *TimerBreaker {
	b := &TimerBreaker{}
	b.timer = time.AfterFunc(d, func() { b.expired.Store(true) })
	return b
}

// Stop releases the underlying timer if the breaker is discarded before it
// fires.
func (b *TimerBreaker) Stop() { b.timer.Stop() }

// Alive builds the take_while predicate for element type T: true until the
// breaker's duration elapses, at which point the owning take_while cancels
// upstream and completes downstream. A free function rather than a method
// because Go methods cannot carry their own type parameter.
func Alive[T any](b *TimerBreaker) func(T) bool {
	return func(T) bool { return !b.expired.Load() }
}
