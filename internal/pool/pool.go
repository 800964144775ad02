// Package pool defines the worker pool the scheduler dispatches stage
// evaluations to. The engine is agnostic to where workers run; the local
// implementation uses a fixed set of goroutines over a task channel.
package pool

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Submit after the pool has been closed. The
// scheduler treats it as fatal for the run.
var ErrClosed = errors.New("worker pool closed")

// Task is a single coarse-grained, run-to-completion unit of work.
type Task func()

// Pool accepts tasks for asynchronous execution.
type Pool interface {
	// Submit enqueues a task. It may block while all workers are busy and the
	// queue is full, and returns ErrClosed once the pool is shut down.
	Submit(t Task) error
	// Close stops accepting tasks and waits for in-flight tasks to finish.
	Close()
}

// Local is a fixed-size goroutine pool.
type Local struct {
	tasks chan Task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewLocal starts a pool with the given number of workers. A non-positive
// count gets a single worker so the pool always makes progress.
func NewLocal(workers int) *Local {
	if workers < 1 {
		workers = 1
	}
	p := &Local{tasks: make(chan Task)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Local) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit implements Pool. The lock is held across the send so a concurrent
// Close cannot close the channel under an in-flight Submit.
func (p *Local) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.tasks <- t
	return nil
}

// Close implements Pool. Safe to call once; tasks submitted concurrently with
// Close may still be accepted.
func (p *Local) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.tasks)
	p.wg.Wait()
}
