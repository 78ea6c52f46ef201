package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"livescore/internal/livescore/model"
)

// MemoryMatchStore keeps matches in process memory. It honours the same
// unique external id and per-document atomicity as the Mongo store.
type MemoryMatchStore struct {
	mu         sync.RWMutex
	byID       map[primitive.ObjectID]*model.MatchSnapshot
	byExternal map[string]primitive.ObjectID
}

func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{
		byID:       make(map[primitive.ObjectID]*model.MatchSnapshot),
		byExternal: make(map[string]primitive.ObjectID),
	}
}

func (s *MemoryMatchStore) FindByExternalID(_ context.Context, externalID string) (*model.MatchSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryMatchStore) FindByID(_ context.Context, id string) (*model.MatchSnapshot, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[oid]
	if !ok {
		return nil, nil
	}
	return m.Clone(), nil
}

func (s *MemoryMatchStore) Insert(_ context.Context, m *model.MatchSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[m.ExternalID]; exists {
		return ErrDuplicateKey
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	s.byID[m.ID] = m.Clone()
	s.byExternal[m.ExternalID] = m.ID
	return nil
}

func (s *MemoryMatchStore) UpdateFields(_ context.Context, id string, patch model.MatchPatch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[oid]
	if !ok {
		return nil
	}
	patch.Apply(m)
	return nil
}

func (s *MemoryMatchStore) Find(_ context.Context, q Query) ([]model.MatchSnapshot, error) {
	s.mu.RLock()
	out := make([]model.MatchSnapshot, 0)
	for _, m := range s.byID {
		if q.Matches(m) {
			out = append(out, *m.Clone())
		}
	}
	s.mu.RUnlock()

	switch q.Sort {
	case SortMatchDateAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].MatchDate.Before(out[j].MatchDate) })
	case SortMatchDateDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].MatchDate.After(out[j].MatchDate) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// MemoryJobStore keeps crawl jobs in process memory.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs []*model.CrawlJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{}
}

func (s *MemoryJobStore) InsertJob(_ context.Context, job *model.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	cp := *job
	s.jobs = append(s.jobs, &cp)
	return nil
}

func (s *MemoryJobStore) FindJob(_ context.Context, jobID string) (*model.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.JobID == jobID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryJobStore) CompleteJob(_ context.Context, job *model.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.JobID == job.JobID {
			cp := *job
			s.jobs[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *MemoryJobStore) RecentJobs(_ context.Context, limit int) ([]model.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CrawlJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryJobStore) TaskStats(_ context.Context, since time.Time) ([]model.TaskStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTask := make(map[string]*model.TaskStats)
	var order []string
	for _, j := range s.jobs {
		if j.StartedAt.Before(since) {
			continue
		}
		st, ok := byTask[j.TaskName]
		if !ok {
			st = &model.TaskStats{TaskName: j.TaskName}
			byTask[j.TaskName] = st
			order = append(order, j.TaskName)
		}
		st.TotalRuns++
		switch j.Status {
		case model.JobCompleted:
			st.Completed++
		case model.JobFailed:
			st.Failed++
		}
		st.TotalDuration += j.Duration
	}
	out := make([]model.TaskStats, 0, len(order))
	for _, name := range order {
		st := byTask[name]
		if st.TotalRuns > 0 {
			st.AvgDuration = st.TotalDuration / float64(st.TotalRuns)
		}
		out = append(out, *st)
	}
	return out, nil
}
