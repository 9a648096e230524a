package migrator

import (
	"context"
	"sync/atomic"

	"github.com/flowbot/media-migrator/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

const DefaultConcurrency = 10

// Budget is the permit pool shared by every pipeline of a batch.
type Budget struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func NewBudget(size int) *Budget {
	if size < 1 {
		size = DefaultConcurrency
	}
	return &Budget{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Acquire blocks until a permit is available or ctx is done.
func (b *Budget) Acquire(ctx context.Context) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	n := b.inFlight.Add(1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	metrics.IncreaseItemsInFlightMetric()

	return nil
}

func (b *Budget) Release() {
	b.inFlight.Add(-1)
	metrics.DecreaseItemsInFlightMetric()
	b.sem.Release(1)
}

func (b *Budget) Size() int {
	return int(b.size)
}

func (b *Budget) InFlight() int {
	return int(b.inFlight.Load())
}

// Peak is the highest number of permits held at once.
func (b *Budget) Peak() int {
	return int(b.peak.Load())
}
