package store

import (
	"context"
	"sync"
)

// workerPool runs fn over queued items on n goroutines with a bounded queue.
type workerPool[T any] struct {
	queue chan T
	fn    func(ctx context.Context, t T)
	wg    sync.WaitGroup
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity size.
func newWorkerPool[T any](ctx context.Context, n, size int, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		queue: make(chan T, size),
		fn:    fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.fn(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// submit enqueues without blocking (returns false if full).
func (p *workerPool[T]) submit(t T) bool {
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// drain closes the queue and waits for the workers to finish what is queued.
func (p *workerPool[T]) drain() {
	close(p.queue)
	p.wg.Wait()
}

func (p *workerPool[T]) queueLen() int { return len(p.queue) }

func (p *workerPool[T]) queueCap() int { return cap(p.queue) }
