// Package workqueue runs background tasks on a fixed set of workers fed by a
// bounded queue. Submit never blocks and rejects tasks when the queue is
// full; SubmitWait waits for room instead.
package workqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("work queue full")
	ErrClosed    = errors.New("work queue closed")
)

// Task is one unit of queued work.
type Task struct {
	ID   uuid.UUID
	Name string
	Run  func(ctx context.Context) error
}

// Stats is a point-in-time view of a pool's counters. Waited counts
// SubmitWait calls that found the queue full.
type Stats struct {
	Queued    int
	Completed uint64
	Failed    uint64
	Rejected  uint64
	Waited    uint64
}

type Pool struct {
	name  string
	ctx   context.Context
	tasks chan Task

	mu     sync.RWMutex
	closed bool

	workers sync.WaitGroup

	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	waited    atomic.Uint64
}

// New starts a pool with the given queue size and number of workers. Tasks
// receive ctx, which should outlive the producers so that queued work can
// still finish while the pool drains.
func New(ctx context.Context, name string, size, workers int) *Pool {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		name:  name,
		ctx:   ctx,
		tasks: make(chan Task, size),
	}
	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.work(i)
	}
	return p
}

func (p *Pool) work(id int) {
	defer p.workers.Done()
	slog.Debug("Worker started", "pool", p.name, "worker", id)

	for task := range p.tasks {
		p.run(task)
	}
	slog.Debug("Worker stopped", "pool", p.name, "worker", id)
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			slog.Error("Task panicked", "pool", p.name, "task", task.Name, "id", task.ID, "panic", r)
		}
	}()

	if err := task.Run(p.ctx); err != nil {
		p.failed.Add(1)
		slog.Error("Task failed", "pool", p.name, "task", task.Name, "id", task.ID, "error", err)
		return
	}
	p.completed.Add(1)
}

// Submit queues fn without blocking. It returns ErrQueueFull when the queue
// has no room and ErrClosed after Close.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) (uuid.UUID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return uuid.Nil, ErrClosed
	}

	task := Task{ID: uuid.New(), Name: name, Run: fn}
	select {
	case p.tasks <- task:
		return task.ID, nil
	default:
		p.rejected.Add(1)
		return uuid.Nil, ErrQueueFull
	}
}

// SubmitWait queues fn, waiting for room when the queue is full. It returns
// ErrClosed after Close and ctx.Err() if ctx is done first. Close blocks
// until pending SubmitWait calls have returned.
func (p *Pool) SubmitWait(ctx context.Context, name string, fn func(ctx context.Context) error) (uuid.UUID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return uuid.Nil, ErrClosed
	}

	task := Task{ID: uuid.New(), Name: name, Run: fn}
	select {
	case p.tasks <- task:
		return task.ID, nil
	default:
	}

	p.waited.Add(1)
	select {
	case p.tasks <- task:
		return task.ID, nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return uuid.Nil, ctx.Err()
	}
}

// Close stops accepting tasks and waits until every queued task has run.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.workers.Wait()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.workers.Wait()
	slog.Debug("Work queue drained", "pool", p.name)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.tasks),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Waited:    p.waited.Load(),
	}
}
