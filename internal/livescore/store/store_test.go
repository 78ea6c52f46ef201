package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"livescore/internal/livescore/model"
)

func seed(t *testing.T, s *MemoryMatchStore, ext string, status model.MatchStatus, date time.Time) *model.MatchSnapshot {
	t.Helper()
	m := &model.MatchSnapshot{
		ExternalID: ext,
		Status:     status,
		MatchDate:  date,
		HomeTeam:   model.Team{Name: "Home FC"},
		AwayTeam:   model.Team{Name: "Away United"},
		Events:     []model.MatchEvent{},
	}
	require.NoError(t, s.Insert(context.Background(), m))
	return m
}

func TestMemoryMatchStore_UniqueExternalID(t *testing.T) {
	s := NewMemoryMatchStore()
	ctx := context.Background()
	first := seed(t, s, "m1", model.StatusLive, time.Now())

	err := s.Insert(ctx, &model.MatchSnapshot{ExternalID: "m1"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	got, err := s.FindByID(ctx, first.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "m1", got.ExternalID)

	missing, err := s.FindByExternalID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryMatchStore_ReadsAreCopies(t *testing.T) {
	s := NewMemoryMatchStore()
	ctx := context.Background()
	seed(t, s, "m1", model.StatusLive, time.Now())

	got, _ := s.FindByExternalID(ctx, "m1")
	got.Status = model.StatusFinished
	got.Events = append(got.Events, model.MatchEvent{Type: model.EventGoal})

	again, _ := s.FindByExternalID(ctx, "m1")
	assert.Equal(t, model.StatusLive, again.Status)
	assert.Empty(t, again.Events)
}

func TestMemoryMatchStore_UpdateFields(t *testing.T) {
	s := NewMemoryMatchStore()
	ctx := context.Background()
	m := seed(t, s, "m1", model.StatusLive, time.Now())

	status := model.StatusHalftime
	now := time.Now().UTC()
	require.NoError(t, s.UpdateFields(ctx, m.ID.Hex(), model.MatchPatch{Status: &status, UpdatedAt: now}))

	got, _ := s.FindByExternalID(ctx, "m1")
	assert.Equal(t, model.StatusHalftime, got.Status)
	assert.Equal(t, "Home FC", got.HomeTeam.Name)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestMemoryMatchStore_FindDisjunction(t *testing.T) {
	s := NewMemoryMatchStore()
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	dayStart := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	seed(t, s, "live", model.StatusLive, now.Add(-48*time.Hour))
	seed(t, s, "today", model.StatusScheduled, now.Add(3*time.Hour))
	seed(t, s, "tomorrow", model.StatusScheduled, now.Add(24*time.Hour))
	seed(t, s, "done", model.StatusFinished, now)

	got, err := s.Find(ctx, Query{
		Any: []Query{
			{Statuses: []model.MatchStatus{model.StatusLive, model.StatusHalftime}},
			{Statuses: []model.MatchStatus{model.StatusScheduled}, DateFrom: &dayStart, DateTo: &dayEnd},
		},
		Sort: SortMatchDateAsc,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "live", got[0].ExternalID)
	assert.Equal(t, "today", got[1].ExternalID)
}

func TestFilterFor(t *testing.T) {
	from := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	q := Query{
		Statuses: []model.MatchStatus{model.StatusLive, model.StatusHalftime},
		HomeTeam: "Home FC",
		DateFrom: &from,
		Any:      []Query{{LeagueID: "epl"}},
	}

	f := filterFor(q)
	assert.Equal(t, bson.M{"$in": []model.MatchStatus{model.StatusLive, model.StatusHalftime}}, f["status"])
	assert.Equal(t, "Home FC", f["home_team.name"])
	assert.Equal(t, bson.M{"$gte": from}, f["match_date"])
	assert.Equal(t, bson.A{bson.M{"league.id": "epl"}}, f["$or"])

	single := filterFor(Query{Statuses: []model.MatchStatus{model.StatusLive}})
	assert.Equal(t, model.StatusLive, single["status"])
}

func TestMemoryJobStore_TaskStats(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertJob(ctx, &model.CrawlJob{TaskName: "live", JobID: "a", Status: model.JobCompleted, StartedAt: now, Duration: 2}))
	require.NoError(t, s.InsertJob(ctx, &model.CrawlJob{TaskName: "live", JobID: "b", Status: model.JobFailed, StartedAt: now, Duration: 4}))
	require.NoError(t, s.InsertJob(ctx, &model.CrawlJob{TaskName: "live", JobID: "old", Status: model.JobFailed, StartedAt: now.Add(-48 * time.Hour)}))

	stats, err := s.TaskStats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].TotalRuns)
	assert.Equal(t, 1, stats[0].Completed)
	assert.Equal(t, 1, stats[0].Failed)
	assert.InDelta(t, 3.0, stats[0].AvgDuration, 0.001)
}
