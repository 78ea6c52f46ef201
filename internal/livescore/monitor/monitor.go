package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"livescore/internal/livescore/model"
	"livescore/internal/livescore/store"
)

const DefaultRecentJobs = 50

// JobMonitor records every scheduled run in the job store and feeds the
// in-memory metrics. Hook failures are logged and never reach the run.
type JobMonitor struct {
	Log     *zap.Logger
	Jobs    store.JobStore
	Metrics *Metrics
	Now     func() time.Time
}

func NewJobMonitor(log *zap.Logger, jobs store.JobStore, metrics *Metrics) *JobMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &JobMonitor{Log: log, Jobs: jobs, Metrics: metrics, Now: time.Now}
}

func (m *JobMonitor) OnJobStart(ctx context.Context, taskName, jobID string, params map[string]any) {
	job := &model.CrawlJob{
		TaskName:  taskName,
		JobID:     jobID,
		Params:    params,
		Status:    model.JobRunning,
		StartedAt: m.Now().UTC(),
	}
	if err := m.Jobs.InsertJob(ctx, job); err != nil {
		m.Log.Error("Failed to record job start", zap.String("jobId", jobID), zap.Error(err))
		return
	}
	m.Log.Info("Crawl job started",
		zap.String("id", job.ID.Hex()),
		zap.String("task", taskName),
		zap.String("jobId", jobID),
	)
}

func (m *JobMonitor) OnJobComplete(ctx context.Context, jobID string, result *model.CrawlResult, err error) {
	job, ferr := m.Jobs.FindJob(ctx, jobID)
	if ferr != nil {
		m.Log.Error("Failed to load job", zap.String("jobId", jobID), zap.Error(ferr))
		return
	}
	if job == nil {
		m.Log.Warn("Job log not found", zap.String("jobId", jobID))
		return
	}

	completed := m.Now().UTC()
	duration := completed.Sub(job.StartedAt)
	job.CompletedAt = &completed
	job.Duration = duration.Seconds()
	job.Result = result
	job.Status = model.JobCompleted
	if err != nil {
		job.Status = model.JobFailed
		job.Error = err.Error()
	}
	if uerr := m.Jobs.CompleteJob(ctx, job); uerr != nil {
		m.Log.Error("Failed to record job completion", zap.String("jobId", jobID), zap.Error(uerr))
	}

	var validationErrors, duplicates int
	if result != nil {
		validationErrors = result.ValidationFailures
		duplicates = result.DuplicatesSkipped
	}
	m.Metrics.Record(job.TaskName, err == nil, duration, validationErrors, duplicates, job.Error)

	m.Log.Info("Crawl job completed",
		zap.String("task", job.TaskName),
		zap.String("jobId", jobID),
		zap.Duration("duration", duration),
		zap.String("status", string(job.Status)),
	)
}

func (m *JobMonitor) RecentJobs(ctx context.Context, limit int) ([]model.CrawlJob, error) {
	if limit <= 0 {
		limit = DefaultRecentJobs
	}
	jobs, err := m.Jobs.RecentJobs(ctx, limit)
	if err != nil {
		return nil, &model.StoreError{Op: "recent_jobs", Err: err}
	}
	return jobs, nil
}

type JobStatistics struct {
	PeriodHours int               `json:"period_hours"`
	Since       time.Time         `json:"since"`
	TaskStats   []model.TaskStats `json:"task_stats"`
}

// Statistics aggregates the runs of the last hours per task.
func (m *JobMonitor) Statistics(ctx context.Context, hours int) (*JobStatistics, error) {
	if hours <= 0 {
		hours = 24
	}
	since := m.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := m.Jobs.TaskStats(ctx, since)
	if err != nil {
		return nil, &model.StoreError{Op: "task_stats", Err: err}
	}
	return &JobStatistics{PeriodHours: hours, Since: since, TaskStats: stats}, nil
}

func (m *JobMonitor) Health() Health {
	h := m.Metrics.Health()
	m.Log.Debug("Crawler health check", zap.String("status", string(h.Status)))
	return h
}
