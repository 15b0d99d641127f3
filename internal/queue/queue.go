// Package queue 进程内的后台任务队列：缓冲 channel + 固定数量 worker，
// 任务失败且标记为可重试时按退避策略重试（进程存活期间至少执行一次）。
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

var (
	ErrQueueFull   = errors.New("queue: full")
	ErrQueueClosed = errors.New("queue: closed")
)

type Kind string

const (
	KindNotify Kind = "notify" // 订阅者邮件/站内通知批量投递
	KindHook   Kind = "hook"   // 单个集成目标
)

// Job attempt 从 1 开始
type Job struct {
	Kind    Kind
	Name    string
	EventID string
	Run     func(ctx context.Context, attempt uint) error
}

// RetryableError 任务返回它表示可以重试
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

type Options struct {
	Workers     int
	Capacity    int
	MaxAttempts uint
	RetryDelay  time.Duration
	MaxDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Capacity <= 0 {
		o.Capacity = 1000
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 2 * time.Minute
	}
	return o
}

type Queue struct {
	opts Options
	log  *slog.Logger
	jobs chan Job

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func New(opts Options, log *slog.Logger) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		opts: opts,
		log:  log,
		jobs: make(chan Job, opts.Capacity),
	}
}

// Start 启动 worker；ctx 取消会中断重试等待
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.log.Info("job queue started", "workers", q.opts.Workers, "capacity", q.opts.Capacity)
}

// Enqueue 非阻塞入队
func (q *Queue) Enqueue(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("queue: job %q has no Run func", job.Name)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close 停止接收新任务，等待已入队的任务处理完
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if started {
		q.wg.Wait()
	}
	q.log.Info("job queue stopped")
}

func (q *Queue) Depth() int    { return len(q.jobs) }
func (q *Queue) Capacity() int { return cap(q.jobs) }

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(ctx, id, job)
	}
}

func (q *Queue) process(ctx context.Context, workerID int, job Job) {
	log := q.log.With("worker", workerID, "job_kind", job.Kind, "job", job.Name, "event_id", job.EventID)
	start := time.Now()

	var attempt uint
	err := retry.Do(
		func() error {
			attempt++
			return q.runOnce(ctx, job, attempt)
		},
		retry.Attempts(q.opts.MaxAttempts),
		retry.Delay(q.opts.RetryDelay),
		retry.MaxDelay(q.opts.MaxDelay),
		retry.MaxJitter(q.opts.RetryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("job failed, retrying", "attempt", n+1, "error", err)
		}),
		retry.RetryIf(IsRetryable),
	)
	if err != nil {
		log.Error("job failed", "attempts", attempt, "error", err, "duration", time.Since(start))
		return
	}
	log.Debug("job completed", "attempts", attempt, "duration", time.Since(start))
}

// runOnce 单次执行，panic 视为不可重试的失败
func (q *Queue) runOnce(ctx context.Context, job Job, attempt uint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			q.log.Error("job panicked", "job", job.Name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return job.Run(ctx, attempt)
}
