package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many tasks of one kind run at once across all sessions.
type Pool struct {
	sem  *semaphore.Weighted
	size int
	busy atomic.Int64
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a worker is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.busy.Add(1)
	return nil
}

func (p *Pool) Release() {
	p.busy.Add(-1)
	p.sem.Release(1)
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// Busy is the number of workers currently held.
func (p *Pool) Busy() int { return int(p.busy.Load()) }
