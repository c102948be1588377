package streams

// Empty returns a publisher that completes immediately without emitting.
func Empty[T any]() Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		down.OnSubscribe(NoopSubscription)
		down.OnComplete()
	})
}

// Error returns a publisher that fails immediately with err.
func Error[T any](err error) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		down.OnSubscribe(NoopSubscription)
		down.OnError(err)
	})
}

// Of returns a publisher emitting the given values in order, then
// completing.
func Of[T any](values ...T) Publisher[T] {
	return NewStatefulGenerator(0, func(i *int) (T, bool, error) {
		if *i >= len(values) {
			var zero T
			return zero, false, nil
		}
		v := values[*i]
		*i++
		return v, true, nil
	})
}

// Range emits count consecutive int64 values starting at start. A
// negative count means unbounded (used to model "0..∞" sources such as
// S3's take-while-cancels-upstream scenario).
func Range(start, count int64) Publisher[int64] {
	return NewStatefulGenerator(start, func(cur *int64) (int64, bool, error) {
		if count >= 0 && *cur >= start+count {
			return 0, false, nil
		}
		v := *cur
		*cur++
		return v, true, nil
	})
}
