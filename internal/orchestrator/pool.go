package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of provider calls in flight across all sessions.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Acquire blocks until a slot is free or ctx is done. The returned func
// releases the slot and is safe to call more than once.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		metricPoolRejects.Inc()
		return nil, err
	}
	metricPoolInUse.Inc()
	released := false
	return func() {
		if released {
			return
		}
		released = true
		metricPoolInUse.Dec()
		p.sem.Release(1)
	}, nil
}

// Do runs fn while holding a slot.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (p *Pool) Size() int { return int(p.size) }
