package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"finkargo-billing/internal/infra/metrics"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

type job struct {
	name string
	run  Task
}

// Pool runs submitted tasks on a fixed number of goroutines. Submit never
// blocks; tasks are dropped when the queue is saturated.
type Pool struct {
	wg      sync.WaitGroup
	jobs    chan job
	quit    chan struct{}
	once    sync.Once
	n       int
	timeout time.Duration
	log     *zerolog.Logger
}

// NewPool sizes the pool to workers (NumCPU when <= 0). Each task gets
// taskTimeout when > 0.
func NewPool(workers int, taskTimeout time.Duration, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{
		jobs:    make(chan job, workers*4),
		quit:    make(chan struct{}),
		n:       workers,
		timeout: taskTimeout,
		log:     &l,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					p.drain(ctx, id)
					return
				case j := <-p.jobs:
					p.run(ctx, id, j)
				}
			}
		}(i)
	}
}

// drain runs whatever is still queued once Stop was called.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case j := <-p.jobs:
			p.run(ctx, id, j)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, j job) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncJob(j.name, "failed")
			p.log.Error().Int("worker", id).Str("job", j.name).Interface("panic", rec).Msg("task panicked")
		}
	}()
	if err := j.run(ctx); err != nil {
		metrics.IncJob(j.name, "failed")
		p.log.Error().Err(err).Int("worker", id).Str("job", j.name).Msg("task error")
		return
	}
	metrics.IncJob(j.name, "ok")
}

// Stop waits for the workers to finish queued tasks. It is safe to call twice.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}
	select {
	case p.jobs <- job{name: name, run: task}:
		return nil
	default:
		metrics.IncJob(name, "dropped")
		return ErrQueueFull
	}
}
