// Package streams implements the reactive-streams core: publisher,
// subscriber and subscription types plus the composable operators and
// drain discipline the media pipeline and broker client are built on.
package streams

// Subscription is the link between a Subscriber and the Publisher it is
// subscribed to. Request grants additional demand (cumulative, never
// reset); Cancel terminates the stream from below. Both must tolerate
// being called from any goroutine and Cancel must be idempotent.
type Subscription interface {
	Request(n int64)
	Cancel()
}

type funcSubscription struct {
	request func(int64)
	cancel  func()
}

func (f funcSubscription) Request(n int64) {
	if n <= 0 {
		return
	}
	f.request(n)
}

func (f funcSubscription) Cancel() { f.cancel() }

// NewSubscription builds a Subscription from request/cancel closures.
func NewSubscription(request func(int64), cancel func()) Subscription {
	return funcSubscription{request: request, cancel: cancel}
}

// NoopSubscription never produces anything; used by publishers that emit a
// terminal signal immediately (Empty, Error).
var NoopSubscription = NewSubscription(func(int64) {}, func() {})
