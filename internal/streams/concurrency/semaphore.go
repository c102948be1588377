package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds in-flight decode work, the way the encode worker pool
// caps concurrent SVT-AV1 workers by estimated memory per worker. No stage
// of the media pipeline acquires it; it is a standalone gate for callers
// that need one.
type Semaphore struct {
	w *semaphore.Weighted
	n int64
}

// NewSemaphore returns a gate admitting at most n concurrent holders.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{w: semaphore.NewWeighted(int64(n)), n: int64(n)}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error { return s.w.Acquire(ctx, 1) }

// TryAcquire acquires a permit without blocking, reporting whether it
// succeeded.
func (s *Semaphore) TryAcquire() bool { return s.w.TryAcquire(1) }

// Release returns a permit to the gate.
func (s *Semaphore) Release() { s.w.Release(1) }

// Capacity returns the gate's total permit count.
func (s *Semaphore) Capacity() int { return int(s.n) }

// CapWorkers caps a requested worker count by estimated available memory,
// the way the encode pipeline sizes its SVT-AV1 worker pool: each worker's
// footprint depends on resolution, and the pool leaves headroom for the OS
// and file cache.
func CapWorkers(requested int, width, height uint32, availableMemBytes uint64, memFraction float64) (int, bool) {
	perWorker := memoryPerWorker(width, height)
	maxByMemory := requested
	if availableMemBytes > 0 {
		usable := uint64(float64(availableMemBytes) * memFraction)
		if byMem := int(usable / perWorker); byMem > 0 {
			maxByMemory = byMem
		} else {
			maxByMemory = 1
		}
	}
	if requested > maxByMemory {
		return maxByMemory, true
	}
	return requested, false
}

// Estimated memory per worker by resolution (bytes), carried over from the
// encode worker-pool sizing table.
const (
	MemPerWorker4K    = 5 << 30
	MemPerWorker1080p = 2 << 30
	MemPerWorkerSD    = 512 << 20
)

func memoryPerWorker(width, height uint32) uint64 {
	switch {
	case width >= 3840 || height >= 2160:
		return MemPerWorker4K
	case width >= 1920 || height >= 1080:
		return MemPerWorker1080p
	default:
		return MemPerWorkerSD
	}
}

// CalculatePermits returns the number of in-flight decode permits: worker
// count plus a prefetch buffer, at least 1.
func CalculatePermits(workers, buffer int) int {
	if n := workers + buffer; n > 0 {
		return n
	}
	return 1
}
