package concurrency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/videobot/runtime/internal/streams"
)

// Interval delays item k until lastEmit+period has elapsed, and emits
// immediately (logging that it is running late) when that deadline has
// already passed. Used to pace file/url sources to a target frame rate.
func Interval[T any](upstream streams.Publisher[T], period time.Duration, logger *slog.Logger) streams.Publisher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return streams.PublisherFunc[T](func(down streams.Subscriber[T]) {
		s := &intervalStage[T]{down: down, period: period, logger: logger}
		upstream.Subscribe(s)
	})
}

type intervalStage[T any] struct {
	down   streams.Subscriber[T]
	period time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	lastEmit time.Time
}

func (s *intervalStage[T]) OnSubscribe(sub streams.Subscription) {
	s.down.OnSubscribe(sub)
}

func (s *intervalStage[T]) OnNext(v T) {
	s.mu.Lock()
	var wait time.Duration
	if !s.lastEmit.IsZero() {
		target := s.lastEmit.Add(s.period)
		wait = time.Until(target)
	}
	s.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	} else if !s.lastEmit.IsZero() && wait < 0 {
		s.logger.Warn("interval running late", "behind", -wait)
	}

	s.mu.Lock()
	s.lastEmit = time.Now()
	s.mu.Unlock()

	s.down.OnNext(v)
}

func (s *intervalStage[T]) OnComplete()       { s.down.OnComplete() }
func (s *intervalStage[T]) OnError(err error) { s.down.OnError(err) }
