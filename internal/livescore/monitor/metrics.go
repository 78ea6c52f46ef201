package monitor

import (
	"math"
	"sync"
	"time"
)

type HealthStatus string

const (
	Healthy  HealthStatus = "healthy"
	Warning  HealthStatus = "warning"
	Critical HealthStatus = "critical"
)

// Health thresholds, in percent.
const (
	criticalFailureRate   = 50
	warningFailureRate    = 20
	warningValidationRate = 30
)

type LastError struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskMetrics are the running totals of one task plus derived rates.
type TaskMetrics struct {
	Total            int        `json:"total"`
	Success          int        `json:"success"`
	Failed           int        `json:"failed"`
	ValidationErrors int        `json:"validation_errors"`
	Duplicates       int        `json:"duplicates"`
	TotalDuration    float64    `json:"total_duration"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	LastError        *LastError `json:"last_error,omitempty"`

	SuccessRate         float64 `json:"success_rate"`
	FailureRate         float64 `json:"failure_rate"`
	AvgDuration         float64 `json:"avg_duration"`
	ValidationErrorRate float64 `json:"validation_error_rate"`
	DuplicateRate       float64 `json:"duplicate_rate"`
}

type Health struct {
	Status                     HealthStatus           `json:"status"`
	Message                    string                 `json:"message"`
	UptimeHours                float64                `json:"uptime_hours"`
	TotalCrawls                int                    `json:"total_crawls"`
	OverallFailureRate         float64                `json:"overall_failure_rate"`
	OverallValidationErrorRate float64                `json:"overall_validation_error_rate"`
	TaskMetrics                map[string]TaskMetrics `json:"task_metrics"`
	Timestamp                  time.Time              `json:"timestamp"`
}

// Metrics tracks crawl outcomes in memory since process start.
type Metrics struct {
	Now func() time.Time

	mu      sync.Mutex
	tasks   map[string]*TaskMetrics
	started time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{Now: time.Now, tasks: make(map[string]*TaskMetrics), started: time.Now()}
}

// Record adds one finished run of task. errMsg is empty on success.
func (m *Metrics) Record(task string, success bool, duration time.Duration, validationErrors, duplicates int, errMsg string) {
	now := m.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task]
	if !ok {
		t = &TaskMetrics{}
		m.tasks[task] = t
	}
	t.Total++
	if success {
		t.Success++
	} else {
		t.Failed++
		t.LastError = &LastError{Error: errMsg, Timestamp: now}
	}
	t.ValidationErrors += validationErrors
	t.Duplicates += duplicates
	t.TotalDuration += duration.Seconds()
	t.LastRun = &now
}

// Task returns the metrics of one task; the zero value when never recorded.
func (m *Metrics) Task(task string) TaskMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[task]
	if !ok {
		return TaskMetrics{}
	}
	return withRates(*t)
}

func (m *Metrics) All() map[string]TaskMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]TaskMetrics, len(m.tasks))
	for name, t := range m.tasks {
		out[name] = withRates(*t)
	}
	return out
}

// Health summarises every task into one status.
func (m *Metrics) Health() Health {
	all := m.All()

	var total, failures, validation int
	for _, t := range all {
		total += t.Total
		failures += t.Failed
		validation += t.ValidationErrors
	}
	var failureRate, validationRate float64
	if total > 0 {
		failureRate = float64(failures) / float64(total) * 100
		validationRate = float64(validation) / float64(total) * 100
	}

	h := Health{
		TotalCrawls:                total,
		OverallFailureRate:         round2(failureRate),
		OverallValidationErrorRate: round2(validationRate),
		TaskMetrics:                all,
		Timestamp:                  m.Now().UTC(),
	}
	switch {
	case failureRate > criticalFailureRate:
		h.Status, h.Message = Critical, "High failure rate detected. Check the source and fetcher configuration."
	case failureRate > warningFailureRate:
		h.Status, h.Message = Warning, "Moderate failure rate. Monitor for issues."
	case validationRate > warningValidationRate:
		h.Status, h.Message = Warning, "High validation error rate. Check data quality."
	default:
		h.Status, h.Message = Healthy, "All systems operating normally."
	}

	m.mu.Lock()
	h.UptimeHours = round2(m.Now().Sub(m.started).Hours())
	m.mu.Unlock()
	return h
}

// Reset clears one task, or everything when task is empty.
func (m *Metrics) Reset(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task != "" {
		delete(m.tasks, task)
		return
	}
	m.tasks = make(map[string]*TaskMetrics)
	m.started = m.Now()
}

func withRates(t TaskMetrics) TaskMetrics {
	if t.Total == 0 {
		return t
	}
	n := float64(t.Total)
	t.SuccessRate = round2(float64(t.Success) / n * 100)
	t.FailureRate = round2(float64(t.Failed) / n * 100)
	t.AvgDuration = round2(t.TotalDuration / n)
	t.ValidationErrorRate = round2(float64(t.ValidationErrors) / n * 100)
	t.DuplicateRate = round2(float64(t.Duplicates) / n * 100)
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
