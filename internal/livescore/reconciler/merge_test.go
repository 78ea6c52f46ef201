package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livescore/internal/livescore/model"
)

func goal(minute int, player string, team model.Side) model.MatchEvent {
	return model.MatchEvent{Type: model.EventGoal, Minute: minute, Player: player, Team: team}
}

func minutes(events []model.MatchEvent) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.Minute
	}
	return out
}

func TestMergeEvents_Idempotent(t *testing.T) {
	existing := []model.MatchEvent{goal(10, "A", model.SideHome), goal(80, "D", model.SideAway)}
	incoming := []model.MatchEvent{
		goal(67, "B", model.SideHome),
		goal(10, "A", model.SideHome),
		{Type: model.EventYellowCard, Minute: 30, Player: "C", Team: model.SideAway},
	}

	once, added := MergeEvents(existing, incoming)
	twice, addedAgain := MergeEvents(once, incoming)

	assert.Equal(t, once, twice)
	assert.Len(t, added, 2)
	assert.Empty(t, addedAgain)
	assert.Equal(t, []int{10, 30, 67, 80}, minutes(once))
}

func TestMergeEvents_SignatureIgnoresAssistAndDescription(t *testing.T) {
	existing := []model.MatchEvent{goal(23, "John Doe", model.SideHome)}
	dup := goal(23, "John Doe", model.SideHome)
	dup.Assist = "Jane Smith"
	dup.Description = "header"

	merged, added := MergeEvents(existing, []model.MatchEvent{dup})

	require.Len(t, merged, 1)
	assert.Empty(t, added)
	assert.Empty(t, merged[0].Assist, "extra fields of the duplicate are discarded")
}

func TestMergeEvents_DedupsWithinIncoming(t *testing.T) {
	merged, added := MergeEvents(nil, []model.MatchEvent{goal(5, "A", model.SideHome), goal(5, "A", model.SideHome)})
	assert.Len(t, merged, 1)
	assert.Len(t, added, 1)
}

func TestReconcile_NewRecord(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)
	valid := &model.ValidSnapshot{Score: model.Score{Home: 0, Away: 0}}

	got, isNew := Reconcile("ext-1", valid, nil, now)

	assert.True(t, isNew)
	assert.Equal(t, "ext-1", got.ExternalID)
	assert.Equal(t, model.StatusScheduled, got.Status)
	assert.NotNil(t, got.Events)
	assert.Empty(t, got.Events)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestReconcile_EndToEndScenario(t *testing.T) {
	created := time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)
	now := created.Add(75 * time.Minute)
	existing := &model.MatchSnapshot{
		ExternalID: "e2e",
		Status:     model.StatusLive,
		Score:      model.MatchScore{Home: 1, Away: 0},
		Events:     []model.MatchEvent{goal(10, "A", model.SideHome)},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	minute := 75
	valid := &model.ValidSnapshot{
		Score:  model.Score{Home: 2, Away: 1},
		Status: model.StatusLive,
		Minute: &minute,
		Events: []model.MatchEvent{
			goal(10, "A", model.SideHome),
			goal(67, "B", model.SideHome),
			goal(70, "C", model.SideAway),
		},
	}

	got, isNew := Reconcile("e2e", valid, existing, now)

	assert.False(t, isNew)
	assert.Equal(t, []int{10, 67, 70}, minutes(got.Events))
	assert.Equal(t, 2, got.Score.Home)
	assert.Equal(t, 1, got.Score.Away)
	assert.Equal(t, 75, *got.Minute)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)
	assert.Len(t, existing.Events, 1, "existing record must not be mutated")
}

func TestReconcile_KeepsOptionalFieldsWhenAbsent(t *testing.T) {
	minute := 30
	existing := &model.MatchSnapshot{
		ExternalID: "x",
		Status:     model.StatusLive,
		Minute:     &minute,
		Statistics: map[string]model.TeamStat{"shots": {Home: 3, Away: 1}},
		HomeTeam:   model.Team{Name: "Home FC"},
		League:     &model.League{ID: "epl"},
	}

	got, _ := Reconcile("x", &model.ValidSnapshot{Status: model.StatusLive, Score: model.Score{Home: 1}}, existing, time.Now())

	assert.Equal(t, 30, *got.Minute)
	assert.Equal(t, model.TeamStat{Home: 3, Away: 1}, got.Statistics["shots"])
	assert.Equal(t, "Home FC", got.HomeTeam.Name)
	assert.Equal(t, "epl", got.LeagueID())
}

func TestReconcile_HalftimeCapturedOnce(t *testing.T) {
	now := time.Now()
	existing := &model.MatchSnapshot{ExternalID: "ht", Status: model.StatusLive, Score: model.MatchScore{Home: 1, Away: 0}}

	first, _ := Reconcile("ht", &model.ValidSnapshot{Status: model.StatusHalftime, Score: model.Score{Home: 1, Away: 0}}, existing, now)
	require.NotNil(t, first.Score.Halftime)
	assert.Equal(t, model.Score{Home: 1, Away: 0}, *first.Score.Halftime)

	second, _ := Reconcile("ht", &model.ValidSnapshot{Status: model.StatusHalftime, Score: model.Score{Home: 1, Away: 1}}, first, now)
	assert.Equal(t, model.Score{Home: 1, Away: 0}, *second.Score.Halftime)
	assert.Equal(t, 1, second.Score.Away)

	later, _ := Reconcile("ht", &model.ValidSnapshot{Status: model.StatusLive, Score: model.Score{Home: 2, Away: 1}}, second, now)
	assert.Equal(t, model.Score{Home: 1, Away: 0}, *later.Score.Halftime, "halftime survives later updates")
}

func TestReconcile_FulltimeRewrittenWhileFinished(t *testing.T) {
	now := time.Now()
	existing := &model.MatchSnapshot{ExternalID: "ft", Status: model.StatusLive, Score: model.MatchScore{Home: 2, Away: 2}}

	finished, _ := Reconcile("ft", &model.ValidSnapshot{Status: model.StatusFinished, Score: model.Score{Home: 2, Away: 2}}, existing, now)
	require.NotNil(t, finished.Score.Fulltime)
	assert.Equal(t, model.Score{Home: 2, Away: 2}, *finished.Score.Fulltime)

	corrected, _ := Reconcile("ft", &model.ValidSnapshot{Status: model.StatusFinished, Score: model.Score{Home: 3, Away: 2}}, finished, now)
	assert.Equal(t, model.Score{Home: 3, Away: 2}, *corrected.Score.Fulltime)
}
