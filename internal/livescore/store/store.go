package store

import (
	"context"
	"errors"
	"time"

	"livescore/internal/livescore/model"
)

// ErrDuplicateKey is returned by Insert when the external id is already stored.
var ErrDuplicateKey = errors.New("duplicate external id")

type SortOrder int

const (
	SortNone SortOrder = iota
	SortMatchDateAsc
	SortMatchDateDesc
)

// Query selects matches. Non-empty fields are combined with AND; Any holds
// alternatives combined with OR and then ANDed with the rest.
type Query struct {
	Statuses []model.MatchStatus
	HomeTeam string
	AwayTeam string
	LeagueID string
	DateFrom *time.Time // inclusive
	DateTo   *time.Time // inclusive
	Any      []Query
	Sort     SortOrder
	Limit    int
}

// MatchStore is the durable keyed document store for reconciled matches.
// Lookups that find nothing return (nil, nil). Updates are atomic per document.
type MatchStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.MatchSnapshot, error)
	FindByID(ctx context.Context, id string) (*model.MatchSnapshot, error)
	Insert(ctx context.Context, m *model.MatchSnapshot) error
	UpdateFields(ctx context.Context, id string, patch model.MatchPatch) error
	Find(ctx context.Context, q Query) ([]model.MatchSnapshot, error)
}

// JobStore keeps crawl job records for the monitoring hook.
type JobStore interface {
	InsertJob(ctx context.Context, job *model.CrawlJob) error
	FindJob(ctx context.Context, jobID string) (*model.CrawlJob, error)
	CompleteJob(ctx context.Context, job *model.CrawlJob) error
	RecentJobs(ctx context.Context, limit int) ([]model.CrawlJob, error)
	TaskStats(ctx context.Context, since time.Time) ([]model.TaskStats, error)
}

// Matches reports whether m satisfies q, ignoring Sort and Limit.
func (q Query) Matches(m *model.MatchSnapshot) bool {
	if len(q.Statuses) > 0 {
		ok := false
		for _, s := range q.Statuses {
			if m.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.HomeTeam != "" && m.HomeTeam.Name != q.HomeTeam {
		return false
	}
	if q.AwayTeam != "" && m.AwayTeam.Name != q.AwayTeam {
		return false
	}
	if q.LeagueID != "" && m.LeagueID() != q.LeagueID {
		return false
	}
	if q.DateFrom != nil && m.MatchDate.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && m.MatchDate.After(*q.DateTo) {
		return false
	}
	if len(q.Any) > 0 {
		for _, alt := range q.Any {
			if alt.Matches(m) {
				return true
			}
		}
		return false
	}
	return true
}
