package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ErrGroupWorker runs a fixed set of phases concurrently under a shared
// context, cancelling the remaining phases as soon as one returns an
// error — the same two-goroutine "decode metadata while streaming bytes"
// pattern the chunked-encode pipeline uses to overlap setup phases.
type ErrGroupWorker struct {
	g   *errgroup.Group
	ctx context.Context
}

// NewErrGroupWorker derives a cancellable context from parent and returns
// a worker that phases can be added to.
func NewErrGroupWorker(parent context.Context) (*ErrGroupWorker, context.Context) {
	g, ctx := errgroup.WithContext(parent)
	return &ErrGroupWorker{g: g, ctx: ctx}, ctx
}

// Go schedules one phase.
func (w *ErrGroupWorker) Go(phase func() error) { w.g.Go(phase) }

// Wait blocks until every phase has returned, yielding the first error (if
// any).
func (w *ErrGroupWorker) Wait() error { return w.g.Wait() }
