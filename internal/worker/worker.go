// Package worker runs a fixed set of goroutines that each own one task at a
// time until its handler returns.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Handler processes one task on behalf of worker id.
type Handler[T any] func(ctx context.Context, id int, task T)

// Pool is a fixed-size worker pool fed through a bounded queue. Tasks beyond
// the queue capacity make Submit block until a worker frees up.
type Pool[T any] struct {
	size  int
	tasks chan T
	wg    sync.WaitGroup
	busy  atomic.Int32
	once  sync.Once
}

// NewPool creates a pool of size workers with room for queue pending tasks.
func NewPool[T any](size, queue int) *Pool[T] {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	return &Pool[T]{size: size, tasks: make(chan T, queue)}
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int { return p.size }

// Busy returns how many workers are currently running a handler.
func (p *Pool[T]) Busy() int { return int(p.busy.Load()) }

// Pending returns how many tasks wait in the queue.
func (p *Pool[T]) Pending() int { return len(p.tasks) }

// Start spawns the workers. Each worker keeps pulling tasks until Close.
func (p *Pool[T]) Start(ctx context.Context, h Handler[T]) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.tasks {
				p.run(ctx, id, task, h)
			}
		}(i)
	}
}

// run executes one task. A panicking handler is logged and the worker moves
// on to the next task, so the pool never shrinks.
func (p *Pool[T]) run(ctx context.Context, id int, task T, h Handler[T]) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("worker", id).Errorf("Handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	h(ctx, id, task)
}

// Submit queues a task, blocking while the queue is full.
func (p *Pool[T]) Submit(ctx context.Context, task T) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. Queued tasks are still handed to workers.
func (p *Pool[T]) Close() {
	p.once.Do(func() { close(p.tasks) })
}

// Wait blocks until every worker has exited.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}
