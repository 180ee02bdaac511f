package util

import (
	"sync"
)

// CallerRunsPool is a fixed-size worker pool with a bounded queue. When the
// queue is full, Submit executes the task on the calling goroutine instead of
// dropping it, so a slow consumer applies backpressure to the producer rather
// than losing work.
type CallerRunsPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewCallerRunsPool(workers, queueDepth int) *CallerRunsPool {
	if workers < 1 {
		workers = 1
	}

	if queueDepth < 1 {
		queueDepth = 1
	}

	p := &CallerRunsPool{
		tasks: make(chan func(), queueDepth),
	}

	p.wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()

			for task := range p.tasks {
				task()
			}
		}()
	}

	return p
}

// Submit enqueues task for execution, running it inline when the queue is
// full or the pool is closed.
func (p *CallerRunsPool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		task()

		return
	}

	// The lock is held across the send so Close cannot close the channel
	// between the check above and the enqueue.
	select {
	case p.tasks <- task:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		task()
	}
}

// Close stops accepting queued work and waits for the workers to drain.
func (p *CallerRunsPool) Close() {
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
