package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of background work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler executes a job. A nil return marks the job done; an error sends it
// through the retry schedule until the attempt cap is reached.
type Handler func(context.Context, Job) error

// QueueConfig tunes the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

type queueState int

const (
	stateIdle queueState = iota
	stateRunning
	stateStopped
)

// Queue dispatches jobs to a fixed pool of goroutines. It is in-memory and
// process-local: anything queued is lost on restart, so callers persist their
// own durable state (sync runs record their outcome on the run row).
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	intake chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state queueState
}

// NewQueue builds a queue around the handler. Zero config fields fall back to
// small defaults suitable for a single service instance.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With(zap.String("queue", name)),
		intake:     make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Calling Start on a running or stopped queue is
// a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateIdle {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.state = stateRunning
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop cancels in-flight handlers and waits for the workers to exit. Jobs
// still buffered are then handed to the handler one last time under the
// cancelled context, so callers can record a terminal state for every job
// the queue ever accepted.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return
	}
	q.state = stateStopped
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()

	for {
		select {
		case job := <-q.intake:
			q.logger.Warn("draining buffered job at shutdown",
				zap.String("job_id", job.ID),
				zap.String("job_type", job.Type))
			if err := q.handler(q.ctx, job); err != nil {
				q.logger.Error("drained job handler failed",
					zap.String("job_id", job.ID),
					zap.Error(err))
			}
		default:
			q.logger.Info("queue stopped")
			return
		}
	}
}

// Enqueue hands a job to the pool. It fails when the queue is not running and
// blocks while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	state := q.state
	ctx := q.ctx
	q.mu.Unlock()

	if state != stateRunning {
		return fmt.Errorf("queue %s is not accepting jobs", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.intake <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s shut down: %w", q.name, ctx.Err())
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.intake:
			if err := q.handler(q.ctx, job); err != nil {
				q.retry(job, err)
			}
		}
	}
}

// retry reschedules a failed job with a linear backoff. The backoff runs off
// the worker goroutine so a failing job never stalls the pool.
func (q *Queue) retry(job Job, cause error) {
	job.Attempt++
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(cause),
	}
	if job.Attempt > q.maxRetries {
		q.logger.Error("job dropped after final attempt", fields...)
		return
	}
	q.logger.Warn("job failed, scheduling retry", fields...)

	delay := q.retryDelay * time.Duration(job.Attempt)
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(job); err != nil {
				q.logger.Error("failed to requeue job", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()
}
