package streams

import "sync"

// Deferred is a single-assignment async cell carrying a value-or-error,
// per spec section 4.1. On registers a callback that fires exactly once:
// immediately if already resolved, otherwise when Resolve/Fail is called.
// Accessing a Deferred's settled state before resolution is never
// possible by construction (callbacks are only invoked from settle), so
// this type has no analogue of the source's "NotInitialized" assertion.
type Deferred[T any] struct {
	mu        sync.Mutex
	resolved  bool
	value     T
	err       error
	callbacks []func(T, error)
}

// NewDeferred returns an unresolved Deferred.
func NewDeferred[T any]() *Deferred[T] { return &Deferred[T]{} }

// Resolve settles the Deferred successfully. Only the first call (of
// either Resolve or Fail) has any effect.
func (d *Deferred[T]) Resolve(v T) { d.settle(v, nil) }

// Fail settles the Deferred with an error. Only the first call (of either
// Resolve or Fail) has any effect.
func (d *Deferred[T]) Fail(err error) {
	var zero T
	d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) {
	d.mu.Lock()
	if d.resolved {
		d.mu.Unlock()
		return
	}
	d.resolved = true
	d.value, d.err = v, err
	cbs := d.callbacks
	d.callbacks = nil
	d.mu.Unlock()
	for _, cb := range cbs {
		cb(v, err)
	}
}

// On registers cb to fire exactly once with the settled value or error.
func (d *Deferred[T]) On(cb func(T, error)) {
	d.mu.Lock()
	if d.resolved {
		v, err := d.value, d.err
		d.mu.Unlock()
		cb(v, err)
		return
	}
	d.callbacks = append(d.callbacks, cb)
	d.mu.Unlock()
}

// DeferredMap transforms a successful value; an error bypasses f and
// propagates unchanged (spec invariant 7).
func DeferredMap[T, U any](d *Deferred[T], f func(T) U) *Deferred[U] {
	out := NewDeferred[U]()
	d.On(func(v T, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		out.Resolve(f(v))
	})
	return out
}

// DeferredThen chains an async computation; an error bypasses f and
// propagates unchanged (spec invariant 7).
func DeferredThen[T, U any](d *Deferred[T], f func(T) *Deferred[U]) *Deferred[U] {
	out := NewDeferred[U]()
	d.On(func(v T, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		f(v).On(func(v2 U, err2 error) {
			if err2 != nil {
				out.Fail(err2)
				return
			}
			out.Resolve(v2)
		})
	})
	return out
}

// Void is the zero-information payload for Deferred[Void], mirroring
// deferred<void> from spec section 4.1.
type Void struct{}
