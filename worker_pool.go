package ocrservice

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrPoolStopped is returned by Do once Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

type poolJob struct {
	fn   func() error
	done chan error
}

// WorkerPool runs blocking engine calls on a fixed number of goroutines, so that the
// number of images being recognized at once never exceeds the pool size.
type WorkerPool struct {
	size     int
	jobs     chan poolJob
	quit     chan struct{}
	group    errgroup.Group
	stopOnce sync.Once
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size: size,
		jobs: make(chan poolJob),
		quit: make(chan struct{}),
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	for i := 0; i < p.size; i++ {
		p.group.Go(p.work)
	}
	log.Info().Str("component", "OCR_POOL").Int("workers", p.size).Msg("worker pool started")
}

// Stop lets running jobs finish and waits for the workers to exit.
func (p *WorkerPool) Stop() error {
	p.stopOnce.Do(func() { close(p.quit) })
	return p.group.Wait()
}

func (p *WorkerPool) work() error {
	for {
		select {
		case job := <-p.jobs:
			job.done <- runJob(job.fn)
		case <-p.quit:
			return nil
		}
	}
}

func runJob(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "OCR_POOL").Str("stack", string(debug.Stack())).
				Msgf("recovered from panic in job: %v", r)
			err = &UnexpectedError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}

// Do hands fn to a free worker and suspends the caller until fn has returned. ctx only
// bounds the wait for a free worker: once a worker has accepted fn it runs to completion.
func (p *WorkerPool) Do(ctx context.Context, fn func() error) error {
	job := poolJob{fn: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for a free ocr worker")
	case <-p.quit:
		return ErrPoolStopped
	}
	return <-job.done
}
