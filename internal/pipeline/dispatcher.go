package pipeline

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one submitted task. Seq is the submission index
// within its dispatcher, starting at zero.
type Result[T any] struct {
	Seq   uint64
	Value T
	Err   error
}

type job[T any] struct {
	seq uint64
	fn  func(context.Context) (T, error)
}

// Dispatcher runs a session's tasks on a shared Pool and releases their
// results strictly in submission order, however the tasks interleave.
//
// At most inflight tasks are started and not yet delivered at any time.
// A task that has started keeps running when the session context ends; it
// gets its own timeout, and its result is discarded.
type Dispatcher[T any] struct {
	pool     *Pool
	inflight int
	depth    int
	timeout  time.Duration

	mu      sync.Mutex
	backlog []job[T]
	next    uint64

	notify  chan struct{}
	results chan Result[T]
}

// NewDispatcher creates a dispatcher. depth bounds the number of tasks
// waiting to start; zero means unbounded. timeout bounds each task; zero means
// no limit beyond the task's own.
func NewDispatcher[T any](pool *Pool, inflight, depth int, timeout time.Duration) *Dispatcher[T] {
	if inflight < 1 {
		inflight = 1
	}
	return &Dispatcher[T]{
		pool:     pool,
		inflight: inflight,
		depth:    depth,
		timeout:  timeout,
		notify:   make(chan struct{}, 1),
		results:  make(chan Result[T]),
	}
}

// Submit queues fn without blocking. It reports false, and assigns no
// sequence number, when the backlog is full.
func (d *Dispatcher[T]) Submit(fn func(context.Context) (T, error)) bool {
	d.mu.Lock()
	if d.depth > 0 && len(d.backlog) >= d.depth {
		d.mu.Unlock()
		return false
	}
	d.backlog = append(d.backlog, job[T]{seq: d.next, fn: fn})
	d.next++
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	return true
}

// Pending is the number of tasks waiting to start.
func (d *Dispatcher[T]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.backlog)
}

// Results yields ordered results while Run is active.
func (d *Dispatcher[T]) Results() <-chan Result[T] {
	return d.results
}

func (d *Dispatcher[T]) pop() (job[T], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.backlog) == 0 {
		return job[T]{}, false
	}
	j := d.backlog[0]
	d.backlog[0] = job[T]{}
	d.backlog = d.backlog[1:]
	return j, true
}

// Run starts queued tasks and delivers their results until ctx is done.
func (d *Dispatcher[T]) Run(ctx context.Context) {
	completed := make(chan Result[T], d.inflight)
	pending := make(map[uint64]Result[T], d.inflight)
	var ready []Result[T]
	var expect uint64
	active := 0 // started and not yet delivered

	for {
		for active < d.inflight {
			j, ok := d.pop()
			if !ok {
				break
			}
			active++
			go d.execute(ctx, j, completed)
		}

		var out chan<- Result[T]
		var head Result[T]
		if len(ready) > 0 {
			out = d.results
			head = ready[0]
		}

		select {
		case <-ctx.Done():
			return
		case <-d.notify:
		case r := <-completed:
			pending[r.Seq] = r
			for {
				next, ok := pending[expect]
				if !ok {
					break
				}
				delete(pending, expect)
				ready = append(ready, next)
				expect++
			}
		case out <- head:
			ready = ready[1:]
			active--
		}
	}
}

func (d *Dispatcher[T]) execute(ctx context.Context, j job[T], completed chan<- Result[T]) {
	r := Result[T]{Seq: j.seq}
	if err := d.pool.Acquire(ctx); err != nil {
		r.Err = err
	} else {
		taskCtx := context.WithoutCancel(ctx)
		cancel := context.CancelFunc(func() {})
		if d.timeout > 0 {
			taskCtx, cancel = context.WithTimeout(taskCtx, d.timeout)
		}
		r.Value, r.Err = j.fn(taskCtx)
		cancel()
		d.pool.Release()
	}

	// completed has room for every active task, so this never blocks.
	completed <- r
}
