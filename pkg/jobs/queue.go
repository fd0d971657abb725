// Package jobs runs background work, such as scoring approved job cards, on a small worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned by Enqueue before Start or after Shutdown.
	ErrNotRunning = errors.New("queue not running")
	// ErrFull is returned when the buffer has no room left.
	ErrFull = errors.New("queue full")
)

// Job outcomes reported to the observer.
const (
	OutcomeDone    = "done"
	OutcomeRetried = "retried"
	OutcomeDead    = "dead"
	OutcomeSkipped = "skipped"
)

// Job is one unit of background work. Jobs sharing a non-empty Key are
// collapsed while one of them is queued or running.
type Job struct {
	ID       string
	Type     string
	Key      string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. Returning an error schedules a retry.
type Handler func(context.Context, Job) error

// Observer is told the outcome of every job attempt.
type Observer func(queue, jobType, outcome string)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Observer   Observer
	Logger     *zap.Logger
}

// Queue is an in-memory dispatcher backed by a fixed goroutine pool.
type Queue struct {
	name     string
	handler  Handler
	observer Observer

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	workWG sync.WaitGroup

	mu       sync.Mutex
	running  bool
	inflight map[string]struct{}
}

// NewQueue builds a queue that dispatches every job to handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = func(string, string, string) {}
	}

	return &Queue{
		name:       name,
		handler:    handler,
		observer:   cfg.Observer,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", name)),
		jobs:       make(chan Job, cfg.BufferSize),
		inflight:   make(map[string]struct{}),
	}
}

// Start launches the workers. Calling it on a running queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.stop = make(chan struct{})
	for i := 0; i < q.workers; i++ {
		q.workWG.Add(1)
		go q.worker()
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Shutdown stops intake and lets the workers drain what is already buffered.
// Jobs still waiting when ctx expires are abandoned and logged.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	close(q.stop)
	close(q.jobs)

	done := make(chan struct{})
	go func() {
		q.workWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("queue shutdown deadline reached", zap.Int("abandoned", q.Pending()))
		return ctx.Err()
	}
}

// Pending returns the number of keyed jobs that are queued or running.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Enqueue pushes a job without blocking. A job whose key is already pending
// is dropped and reported as skipped.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
	if job.Key != "" {
		if _, dup := q.inflight[job.Key]; dup && job.Attempt == 0 {
			q.observer(q.name, job.Type, OutcomeSkipped)
			return nil
		}
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		if job.Key != "" {
			q.inflight[job.Key] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrFull)
	}
}

func (q *Queue) worker() {
	defer q.workWG.Done()
	for job := range q.jobs {
		err := q.handler(q.ctx, job)
		if err == nil {
			q.finish(job, OutcomeDone)
			continue
		}
		q.retry(job, err)
	}
}

func (q *Queue) finish(job Job, outcome string) {
	q.mu.Lock()
	if job.Key != "" {
		delete(q.inflight, job.Key)
	}
	q.mu.Unlock()
	q.observer(q.name, job.Type, outcome)
}

func (q *Queue) retry(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Error("job exceeded retries",
			zap.String("job_id", job.ID), zap.String("type", job.Type), zap.String("key", job.Key), zap.Error(err))
		q.finish(job, OutcomeDead)
		return
	}
	select {
	case <-q.stop:
		q.logger.Warn("dropping failed job during shutdown", zap.String("job_id", job.ID), zap.Error(err))
		q.finish(job, OutcomeDead)
		return
	default:
	}
	q.logger.Warn("job failed, retrying",
		zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err))
	q.observer(q.name, job.Type, OutcomeRetried)

	go func(j Job) {
		timer := time.NewTimer(q.retryDelay * time.Duration(j.Attempt))
		defer timer.Stop()
		select {
		case <-q.stop:
			q.finish(j, OutcomeDead)
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
				q.finish(j, OutcomeDead)
			}
		}
	}(job)
}
