package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// CrawlResult carries the counts of one crawl run.
type CrawlResult struct {
	Updated            int `bson:"updated" json:"updated"`
	Created            int `bson:"created" json:"created"`
	ValidationFailures int `bson:"validation_failures" json:"validation_failures"`
	DuplicatesSkipped  int `bson:"duplicates_skipped" json:"duplicates_skipped"`
	EventsAdded        int `bson:"events_added" json:"events_added"`
	FetchFailures      int `bson:"fetch_failures" json:"fetch_failures"`
	Skipped            int `bson:"skipped" json:"skipped"`
}

// Add accumulates other into r.
func (r *CrawlResult) Add(other CrawlResult) {
	r.Updated += other.Updated
	r.Created += other.Created
	r.ValidationFailures += other.ValidationFailures
	r.DuplicatesSkipped += other.DuplicatesSkipped
	r.EventsAdded += other.EventsAdded
	r.FetchFailures += other.FetchFailures
	r.Skipped += other.Skipped
}

// CrawlJob is the observability record of one scheduled run (collection crawl_jobs).
type CrawlJob struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TaskName    string             `bson:"task_name" json:"task_name"`
	JobID       string             `bson:"job_id" json:"job_id"`
	Params      map[string]any     `bson:"params,omitempty" json:"params,omitempty"`
	Status      JobStatus          `bson:"status" json:"status"`
	StartedAt   time.Time          `bson:"started_at" json:"started_at"`
	CompletedAt *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Duration    float64            `bson:"duration,omitempty" json:"duration,omitempty"` // seconds
	Result      *CrawlResult       `bson:"result,omitempty" json:"result,omitempty"`
	Error       string             `bson:"error,omitempty" json:"error,omitempty"`
}

// TaskStats aggregates crawl jobs of one task over a period.
type TaskStats struct {
	TaskName      string  `bson:"_id" json:"task_name"`
	TotalRuns     int     `bson:"total_runs" json:"total_runs"`
	Completed     int     `bson:"completed" json:"completed"`
	Failed        int     `bson:"failed" json:"failed"`
	AvgDuration   float64 `bson:"avg_duration" json:"avg_duration"`
	TotalDuration float64 `bson:"total_duration" json:"total_duration"`
}
