package worker

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// PanicResult stands in for the result of a job that panicked
type PanicResult struct {
	Value any
	Err   error
}

// GetError returns the recovered panic as an error
func (r *PanicResult) GetError() error {
	return r.Err
}

type task struct {
	index int
	job   Job
}

type outcome struct {
	index  int
	result Result
}

// Pool manages a pool of workers that execute jobs concurrently.
// Wait returns results in submission order. Cancelling the pool context stops
// Submit; jobs already submitted still run, with cancellation removed from
// their context.
type Pool struct {
	workers    int
	jobQueue   chan task
	results    chan outcome
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu        sync.Mutex
	submitted int
	closed    bool
	closeOnce sync.Once

	collected []Result
	collector chan struct{}
	waitOnce  sync.Once
	final     []Result
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan task, workers*2),
		results:    make(chan outcome, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
		collector:  make(chan struct{}),
	}
}

// Start starts the workers and the result collector
func (p *Pool) Start() {
	go p.collect()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	ctx := context.WithoutCancel(p.ctx)
	for t := range p.jobQueue {
		p.results <- outcome{index: t.index, result: run(ctx, t.job)}
	}
}

// run executes one job, converting a panic into a PanicResult
func run(ctx context.Context, job Job) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = &PanicResult{Value: rec, Err: errors.Newf("job panicked: %v", rec)}
		}
	}()
	return job.Execute(ctx)
}

func (p *Pool) collect() {
	defer close(p.collector)
	for o := range p.results {
		for len(p.collected) <= o.index {
			p.collected = append(p.collected, nil)
		}
		p.collected[o.index] = o.result
	}
}

// Submit queues a job. It blocks while the queue is full and returns false
// once the pool context is cancelled or the pool is closed.
func (p *Pool) Submit(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.ctx.Err() != nil {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- task{index: p.submitted, job: job}:
		p.submitted++
		return true
	}
}

// Wait closes the queue, waits for every submitted job and returns the
// results in submission order
func (p *Pool) Wait() []Result {
	p.waitOnce.Do(func() {
		p.close()
		p.wg.Wait()
		close(p.results)
		<-p.collector
		p.cancelFunc()

		p.final = make([]Result, p.submitted)
		copy(p.final, p.collected)
	})
	return p.final
}

// Shutdown stops accepting jobs and waits for submitted ones to finish
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.Wait()
}

func (p *Pool) close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobQueue)
		p.mu.Unlock()
	})
}
