package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"livescore/internal/livescore/model"
)

func intp(v int) *int       { return &v }
func strp(s string) *string { return &s }

func rawWithScore(home, away int) *model.RawSnapshot {
	return &model.RawSnapshot{
		Score:  &model.RawScore{Home: intp(home), Away: intp(away)},
		Status: "live",
	}
}

func TestValidate_ScoreBounds(t *testing.T) {
	tests := []struct {
		name    string
		home    int
		away    int
		wantErr bool
	}{
		{"negative home", -1, 5, true},
		{"away over limit", 50, 200, true},
		{"zero-zero", 0, 0, false},
		{"upper bound", 99, 99, false},
		{"just over", 100, 0, true},
	}

	v := New(zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := v.Validate(rawWithScore(tt.home, tt.away))
			if tt.wantErr {
				var verr *model.ValidationError
				require.Error(t, err)
				assert.True(t, errors.As(err, &verr))
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.Score{Home: tt.home, Away: tt.away}, out.Score)
		})
	}
}

func TestValidate_MissingScoreRejects(t *testing.T) {
	v := New(zap.NewNop())

	_, err := v.Validate(&model.RawSnapshot{Status: "live"})
	assert.Error(t, err)

	_, err = v.Validate(&model.RawSnapshot{Score: &model.RawScore{Home: intp(1)}, Status: "live"})
	assert.Error(t, err)
}

func TestNormalizeStatus_Table(t *testing.T) {
	tests := []struct {
		raw  string
		want model.MatchStatus
	}{
		{"FT", model.StatusFinished},
		{"ft", model.StatusFinished},
		{"finished", model.StatusFinished},
		{"Live", model.StatusLive},
		{"in play", model.StatusLive},
		{"HT", model.StatusHalftime},
		{"Half-Time", model.StatusHalftime},
		{"Not Started", model.StatusScheduled},
		{"postponed", model.StatusPostponed},
		{"Abandoned", model.StatusCancelled},
		{" cancelled ", model.StatusCancelled},
	}

	v := New(zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, v.NormalizeStatus(tt.raw))
		})
	}
}

func TestValidate_UnknownStatusDefaultsWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	v := New(zap.New(core))

	raw := rawWithScore(1, 0)
	raw.Status = "weird"
	out, err := v.Validate(raw)

	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, out.Status)
	assert.Equal(t, 1, logs.FilterField(zap.String("status", "weird")).Len())
}

func TestValidate_UnknownEventTypeDefaultsToGoal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	v := New(zap.New(core))

	raw := rawWithScore(1, 0)
	raw.Events = []model.RawEvent{{Type: "bicycle_kick", Minute: intp(12), Player: "A", Team: "home"}}
	out, err := v.Validate(raw)

	require.NoError(t, err)
	require.Len(t, out.Events, 1)
	assert.Equal(t, model.EventGoal, out.Events[0].Type)
	assert.Equal(t, 1, logs.Len())
}

func TestValidate_EventViolationsRejectSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		event model.RawEvent
	}{
		{"minute over 200", model.RawEvent{Type: "goal", Minute: intp(201), Player: "A", Team: "home"}},
		{"negative minute", model.RawEvent{Type: "goal", Minute: intp(-1), Player: "A", Team: "home"}},
		{"missing minute", model.RawEvent{Type: "goal", Player: "A", Team: "home"}},
		{"blank player", model.RawEvent{Type: "goal", Minute: intp(3), Player: "  \t ", Team: "home"}},
		{"long player", model.RawEvent{Type: "goal", Minute: intp(3), Player: strings.Repeat("x", 201), Team: "home"}},
		{"bad team", model.RawEvent{Type: "goal", Minute: intp(3), Player: "A", Team: "neutral"}},
		{"long description", model.RawEvent{Type: "goal", Minute: intp(3), Player: "A", Team: "away", Description: strp(strings.Repeat("d", 501))}},
	}

	v := New(zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawWithScore(1, 0)
			raw.Events = []model.RawEvent{
				{Type: "goal", Minute: intp(5), Player: "Valid", Team: "home"},
				tt.event,
			}
			out, err := v.Validate(raw)
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.True(t, strings.HasPrefix(verr.Field, "events[1]."), verr.Field)
			assert.Nil(t, out)
		})
	}
}

func TestValidate_TopLevelMinuteBounds(t *testing.T) {
	v := New(zap.NewNop())

	raw := rawWithScore(0, 0)
	raw.Minute = intp(200)
	out, err := v.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, 200, *out.Minute)

	raw.Minute = intp(201)
	_, err = v.Validate(raw)
	assert.Error(t, err)
}

func TestValidate_PlayerWhitespaceAndSorting(t *testing.T) {
	v := New(zap.NewNop())

	raw := rawWithScore(2, 1)
	raw.Events = []model.RawEvent{
		{Type: "goal", Minute: intp(70), Player: "  Late \n  Scorer ", Team: "AWAY", Assist: strp(" Jane   Smith ")},
		{Type: "yellow_card", Minute: intp(10), Player: "Early", Team: "home"},
		{Type: "goal", Minute: intp(45), Player: "Mid", Team: "home"},
	}
	out, err := v.Validate(raw)
	require.NoError(t, err)

	require.Len(t, out.Events, 3)
	assert.Equal(t, []int{10, 45, 70}, []int{out.Events[0].Minute, out.Events[1].Minute, out.Events[2].Minute})
	assert.Equal(t, "Late Scorer", out.Events[2].Player)
	assert.Equal(t, "Jane Smith", out.Events[2].Assist)
	assert.Equal(t, model.SideAway, out.Events[2].Team)
}

func TestNormalizeStatistics(t *testing.T) {
	out := NormalizeStatistics(map[string]model.RawTeamStat{
		"possession": {Home: intp(55), Away: intp(45)},
		"shots":      {Home: intp(7)},
		"corners":    {Away: intp(-3)},
	})

	assert.Equal(t, model.TeamStat{Home: 55, Away: 45}, out["possession"])
	assert.Equal(t, model.TeamStat{Home: 7, Away: 0}, out["shots"])
	assert.Equal(t, model.TeamStat{Home: 0, Away: 0}, out["corners"])
	assert.Nil(t, NormalizeStatistics(nil))
}

func TestValidateFixture(t *testing.T) {
	v := New(zap.NewNop())

	_, err := v.ValidateFixture(model.RawFixture{HomeTeam: model.Team{Name: "A"}, AwayTeam: model.Team{Name: "B"}})
	assert.Error(t, err, "missing external id")

	_, err = v.ValidateFixture(model.RawFixture{ExternalID: "x", HomeTeam: model.Team{Name: "A"}, AwayTeam: model.Team{Name: " "}})
	assert.Error(t, err, "blank away team")
}
