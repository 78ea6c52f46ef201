package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"livescore/internal/livescore/model"
)

const (
	MaxScore             = 99
	MinMinute            = 0
	MaxMinute            = 200 // extra time included
	MaxPlayerLength      = 200
	MaxDescriptionLength = 500
)

// statusTable maps source spellings (lower-cased, trimmed) to canonical statuses.
var statusTable = map[string]model.MatchStatus{
	"ft":          model.StatusFinished,
	"finished":    model.StatusFinished,
	"live":        model.StatusLive,
	"in play":     model.StatusLive,
	"ht":          model.StatusHalftime,
	"half-time":   model.StatusHalftime,
	"halftime":    model.StatusHalftime,
	"scheduled":   model.StatusScheduled,
	"not started": model.StatusScheduled,
	"postponed":   model.StatusPostponed,
	"cancelled":   model.StatusCancelled,
	"abandoned":   model.StatusCancelled,
}

var eventTypes = map[model.EventType]struct{}{
	model.EventGoal:         {},
	model.EventYellowCard:   {},
	model.EventRedCard:      {},
	model.EventSubstitution: {},
	model.EventPenalty:      {},
	model.EventOwnGoal:      {},
}

// Validator turns raw source data into validated snapshots. Score and minute
// violations reject; unknown status and event type strings fall back to a
// default with a warning.
type Validator struct {
	Log *zap.Logger
}

func New(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{Log: log}
}

// Validate checks a raw snapshot. On rejection the error is a *model.ValidationError.
func (v *Validator) Validate(raw *model.RawSnapshot) (*model.ValidSnapshot, error) {
	if raw == nil {
		return nil, &model.ValidationError{Reason: "empty snapshot"}
	}
	score, err := validateScore(raw.Score)
	if err != nil {
		return nil, err
	}
	if raw.Minute != nil && !minuteInRange(*raw.Minute) {
		return nil, &model.ValidationError{
			Field:  "minute",
			Reason: fmt.Sprintf("%d outside [%d, %d]", *raw.Minute, MinMinute, MaxMinute),
		}
	}
	events, err := v.ValidateEvents(raw.Events)
	if err != nil {
		return nil, err
	}

	out := &model.ValidSnapshot{
		Score:      score,
		Status:     v.NormalizeStatus(raw.Status),
		Events:     events,
		Statistics: NormalizeStatistics(raw.Statistics),
		League:     raw.League,
		MatchDate:  raw.MatchDate,
	}
	if raw.Minute != nil {
		m := *raw.Minute
		out.Minute = &m
	}
	if raw.HomeTeam != nil && strings.TrimSpace(raw.HomeTeam.Name) != "" {
		t := normalizeTeam(*raw.HomeTeam)
		out.HomeTeam = &t
	}
	if raw.AwayTeam != nil && strings.TrimSpace(raw.AwayTeam.Name) != "" {
		t := normalizeTeam(*raw.AwayTeam)
		out.AwayTeam = &t
	}
	return out, nil
}

// ValidateEvents validates and minute-sorts an event list. A single invalid
// event rejects the whole list.
func (v *Validator) ValidateEvents(raw []model.RawEvent) ([]model.MatchEvent, error) {
	events := make([]model.MatchEvent, 0, len(raw))
	for i, re := range raw {
		ev, err := v.validateEvent(re)
		if err != nil {
			err.Field = fmt.Sprintf("events[%d].%s", i, err.Field)
			return nil, err
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Minute < events[j].Minute })
	return events, nil
}

// ValidateFixture checks a listed upcoming match and turns it into a snapshot.
func (v *Validator) ValidateFixture(raw model.RawFixture) (*model.ValidSnapshot, error) {
	if raw.Invalid != nil {
		return nil, raw.Invalid
	}
	if strings.TrimSpace(raw.ExternalID) == "" {
		return nil, &model.ValidationError{Field: "external_id", Reason: "required"}
	}
	home := normalizeTeam(raw.HomeTeam)
	away := normalizeTeam(raw.AwayTeam)
	if home.Name == "" {
		return nil, &model.ValidationError{Field: "home_team.name", Reason: "required"}
	}
	if away.Name == "" {
		return nil, &model.ValidationError{Field: "away_team.name", Reason: "required"}
	}
	if raw.MatchDate.IsZero() {
		return nil, &model.ValidationError{Field: "match_date", Reason: "required"}
	}
	date := raw.MatchDate.UTC()
	status := model.StatusScheduled
	if raw.Status != "" {
		status = v.NormalizeStatus(raw.Status)
	}
	return &model.ValidSnapshot{
		Status:    status,
		Events:    []model.MatchEvent{},
		HomeTeam:  &home,
		AwayTeam:  &away,
		League:    raw.League,
		MatchDate: &date,
	}, nil
}

// NormalizeStatus maps a source status string to the canonical enum.
// Unknown strings become scheduled.
func (v *Validator) NormalizeStatus(raw string) model.MatchStatus {
	if s, ok := statusTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	v.Log.Warn("Unknown match status, defaulting to scheduled", zap.String("status", raw))
	return model.StatusScheduled
}

func (v *Validator) validateEvent(re model.RawEvent) (model.MatchEvent, *model.ValidationError) {
	if re.Minute == nil {
		return model.MatchEvent{}, &model.ValidationError{Field: "minute", Reason: "required"}
	}
	if !minuteInRange(*re.Minute) {
		return model.MatchEvent{}, &model.ValidationError{
			Field:  "minute",
			Reason: fmt.Sprintf("%d outside [%d, %d]", *re.Minute, MinMinute, MaxMinute),
		}
	}
	player := CollapseWhitespace(re.Player)
	if player == "" {
		return model.MatchEvent{}, &model.ValidationError{Field: "player", Reason: "empty"}
	}
	if utf8.RuneCountInString(player) > MaxPlayerLength {
		return model.MatchEvent{}, &model.ValidationError{Field: "player", Reason: "too long"}
	}
	team := model.Side(strings.ToLower(strings.TrimSpace(re.Team)))
	if team != model.SideHome && team != model.SideAway {
		return model.MatchEvent{}, &model.ValidationError{Field: "team", Reason: fmt.Sprintf("%q is not home or away", re.Team)}
	}

	ev := model.MatchEvent{
		Type:   v.normalizeEventType(re.Type),
		Minute: *re.Minute,
		Player: player,
		Team:   team,
	}
	if re.Assist != nil {
		ev.Assist = CollapseWhitespace(*re.Assist)
		if utf8.RuneCountInString(ev.Assist) > MaxPlayerLength {
			return model.MatchEvent{}, &model.ValidationError{Field: "assist", Reason: "too long"}
		}
	}
	if re.Description != nil {
		ev.Description = strings.TrimSpace(*re.Description)
		if utf8.RuneCountInString(ev.Description) > MaxDescriptionLength {
			return model.MatchEvent{}, &model.ValidationError{Field: "description", Reason: "too long"}
		}
	}
	return ev, nil
}

func (v *Validator) normalizeEventType(raw string) model.EventType {
	t := model.EventType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := eventTypes[t]; ok {
		return t
	}
	v.Log.Warn("Unknown event type, defaulting to goal", zap.String("type", raw))
	return model.EventGoal
}

func validateScore(raw *model.RawScore) (model.Score, error) {
	if raw == nil {
		return model.Score{}, &model.ValidationError{Field: "score", Reason: "required"}
	}
	if raw.Home == nil {
		return model.Score{}, &model.ValidationError{Field: "score.home", Reason: "required"}
	}
	if raw.Away == nil {
		return model.Score{}, &model.ValidationError{Field: "score.away", Reason: "required"}
	}
	sides := []struct {
		field string
		val   int
	}{{"score.home", *raw.Home}, {"score.away", *raw.Away}}
	for _, s := range sides {
		if s.val < 0 || s.val > MaxScore {
			return model.Score{}, &model.ValidationError{
				Field:  s.field,
				Reason: fmt.Sprintf("%d outside [0, %d]", s.val, MaxScore),
			}
		}
	}
	return model.Score{Home: *raw.Home, Away: *raw.Away}, nil
}

// NormalizeStatistics gives every present metric both sides, defaulting a
// missing side to 0 and clamping negatives to 0. It never rejects.
func NormalizeStatistics(raw map[string]model.RawTeamStat) map[string]model.TeamStat {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]model.TeamStat, len(raw))
	for name, st := range raw {
		out[name] = model.TeamStat{Home: nonNegative(st.Home), Away: nonNegative(st.Away)}
	}
	return out
}

// CollapseWhitespace trims s and replaces internal whitespace runs with a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeTeam(t model.Team) model.Team {
	t.Name = CollapseWhitespace(t.Name)
	t.ShortName = CollapseWhitespace(t.ShortName)
	return t
}

func nonNegative(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func minuteInRange(m int) bool {
	return m >= MinMinute && m <= MaxMinute
}
