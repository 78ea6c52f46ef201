package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"livescore/internal/livescore/model"
)

const (
	DefaultHardTimeout = 300 * time.Second
	DefaultSoftTimeout = 240 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryBase   = time.Second
)

// Task is one periodic crawl.
type Task struct {
	Name   string
	Spec   string
	Params map[string]any
	Run    func(ctx context.Context) (model.CrawlResult, error)
}

// JobHook observes the lifecycle of every run.
type JobHook interface {
	OnJobStart(ctx context.Context, taskName, jobID string, params map[string]any)
	OnJobComplete(ctx context.Context, jobID string, result *model.CrawlResult, err error)
}

// Worker triggers tasks on their cron schedules. Each run gets a hard
// timeout per attempt, a soft warning threshold, and exponential retry.
type Worker struct {
	Log  *zap.Logger
	Hook JobHook

	HardTimeout time.Duration
	SoftTimeout time.Duration
	MaxAttempts int
	RetryBase   time.Duration

	cron    *cron.Cron
	baseCtx context.Context

	mu    sync.Mutex
	tasks map[string]Task
}

func New(log *zap.Logger, hook JobHook) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log: log.Sugar()}
	return &Worker{
		Log:         log,
		Hook:        hook,
		HardTimeout: DefaultHardTimeout,
		SoftTimeout: DefaultSoftTimeout,
		MaxAttempts: DefaultMaxAttempts,
		RetryBase:   DefaultRetryBase,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		baseCtx: context.Background(),
		tasks:   make(map[string]Task),
	}
}

// Add registers a task on its cron spec.
func (w *Worker) Add(task Task) error {
	if task.Name == "" || task.Run == nil {
		return errors.New("scheduler: task needs a name and a run func")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.tasks[task.Name]; dup {
		return fmt.Errorf("scheduler: task %q already registered", task.Name)
	}
	if _, err := w.cron.AddFunc(task.Spec, func() { w.RunTask(w.baseCtx, task) }); err != nil {
		return fmt.Errorf("scheduler: task %q: %w", task.Name, err)
	}
	w.tasks[task.Name] = task
	w.Log.Info("Task scheduled", zap.String("task", task.Name), zap.String("spec", task.Spec))
	return nil
}

// Trigger runs a registered task immediately on the calling goroutine.
func (w *Worker) Trigger(ctx context.Context, name string) (string, error) {
	w.mu.Lock()
	task, ok := w.tasks[name]
	w.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("scheduler: unknown task %q", name)
	}
	return w.RunTask(ctx, task), nil
}

// Start begins firing tasks. Runs use ctx as their parent.
func (w *Worker) Start(ctx context.Context) {
	w.baseCtx = ctx
	w.cron.Start()
	w.Log.Info("Scheduler started")
}

// Stop prevents new runs and waits for running ones.
func (w *Worker) Stop() {
	done := w.cron.Stop()
	<-done.Done()
	w.Log.Info("Scheduler stopped")
}

// RunTask executes task with retries and reports it through the hook. It
// returns the job id.
func (w *Worker) RunTask(ctx context.Context, task Task) string {
	jobID := uuid.NewString()
	if w.Hook != nil {
		w.Hook.OnJobStart(ctx, task.Name, jobID, task.Params)
	}

	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		result model.CrawlResult
		err    error
	)
retry:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = w.runAttempt(ctx, task, jobID, attempt)
		if err == nil {
			break
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		retryDelay := w.calculateRetryDelay(attempt - 1)
		w.Log.Warn("Task failed, retry scheduled",
			zap.String("task", task.Name),
			zap.String("jobId", jobID),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Duration("delay", retryDelay),
			zap.Error(err),
		)

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = ctx.Err()
			w.Log.Info("Context cancelled, stopping retries", zap.String("task", task.Name), zap.String("jobId", jobID))
			break retry
		case <-timer.C:
		}
	}

	if err != nil {
		w.Log.Error("Task failed",
			zap.String("task", task.Name),
			zap.String("jobId", jobID),
			zap.Error(err),
		)
	} else {
		w.Log.Info("Task completed",
			zap.String("task", task.Name),
			zap.String("jobId", jobID),
			zap.Int("created", result.Created),
			zap.Int("updated", result.Updated),
			zap.Int("eventsAdded", result.EventsAdded),
			zap.Int("validationFailures", result.ValidationFailures),
		)
	}
	if w.Hook != nil {
		w.Hook.OnJobComplete(context.WithoutCancel(ctx), jobID, &result, err)
	}
	return jobID
}

func (w *Worker) runAttempt(ctx context.Context, task Task, jobID string, attempt int) (model.CrawlResult, error) {
	hard := w.HardTimeout
	if hard <= 0 {
		hard = DefaultHardTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, hard)
	defer cancel()

	if w.SoftTimeout > 0 && w.SoftTimeout < hard {
		soft := time.AfterFunc(w.SoftTimeout, func() {
			w.Log.Warn("Task exceeded soft time limit",
				zap.String("task", task.Name),
				zap.String("jobId", jobID),
				zap.Int("attempt", attempt),
				zap.Duration("softTimeout", w.SoftTimeout),
			)
		})
		defer soft.Stop()
	}

	result, err := task.Run(runCtx)
	if err == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = runCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("task %s exceeded hard time limit %s: %w", task.Name, hard, err)
	}
	return result, err
}

// calculateRetryDelay returns base * 2^retryCount.
func (w *Worker) calculateRetryDelay(retryCount int) time.Duration {
	base := w.RetryBase
	if base <= 0 {
		base = DefaultRetryBase
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
	}
	return delay
}

// cronLogger sends cron's own logs through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
