package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

type job struct {
	client *Client
	env    *protocol.Envelope
}

// handlerFunc processes one decoded envelope on a worker goroutine.
type handlerFunc func(ctx context.Context, c *Client, env *protocol.Envelope)

// worker runs jobs for the connections pinned to it, in submission order.
type worker struct {
	id   int
	jobs chan job
	quit <-chan struct{}
}

// submit queues j, blocking while the worker is busy. It gives up and returns
// false when either the pool or the submitting client shuts down.
func (w *worker) submit(j job, clientDone <-chan struct{}) bool {
	select {
	case <-w.quit:
		return false
	default:
	}

	select {
	case w.jobs <- j:
		return true
	case <-w.quit:
		return false
	case <-clientDone:
		return false
	}
}

// workerPool is a fixed set of workers. Every connection is assigned one
// worker for its lifetime, so messages from one connection are processed
// sequentially while different connections proceed in parallel.
type workerPool struct {
	workers []*worker
	next    atomic.Uint64
	handle  handlerFunc
	quit    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func newWorkerPool(size, queue int, handle handlerFunc, logger *slog.Logger) *workerPool {
	p := &workerPool{
		workers: make([]*worker, size),
		handle:  handle,
		quit:    make(chan struct{}),
		logger:  logger,
	}
	for i := range p.workers {
		p.workers[i] = &worker{id: i, jobs: make(chan job, queue), quit: p.quit}
	}
	return p
}

func (p *workerPool) size() int { return len(p.workers) }

// assign picks the worker for a new connection, round-robin.
func (p *workerPool) assign() *worker {
	n := p.next.Add(1) - 1
	return p.workers[n%uint64(len(p.workers))]
}

func (p *workerPool) start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.run(ctx, w)
	}
}

func (p *workerPool) run(ctx context.Context, w *worker) {
	defer p.wg.Done()
	for {
		select {
		case j := <-w.jobs:
			p.handle(ctx, j.client, j.env)
		case <-p.quit:
			p.drain(ctx, w)
			return
		}
	}
}

// drain runs whatever was queued before the pool stopped.
func (p *workerPool) drain(ctx context.Context, w *worker) {
	for {
		select {
		case j := <-w.jobs:
			p.handle(ctx, j.client, j.env)
		default:
			return
		}
	}
}

// stop signals every worker to finish its queue and waits for them, or for ctx.
func (p *workerPool) stop(ctx context.Context) error {
	p.stopped.Do(func() { close(p.quit) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped", slog.Int("workers", len(p.workers)))
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out, some jobs may still be running")
		return ctx.Err()
	}
}
