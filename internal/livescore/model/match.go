package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MatchStatus string

const (
	StatusScheduled MatchStatus = "scheduled"
	StatusLive      MatchStatus = "live"
	StatusHalftime  MatchStatus = "halftime"
	StatusFinished  MatchStatus = "finished"
	StatusPostponed MatchStatus = "postponed"
	StatusCancelled MatchStatus = "cancelled"
)

// InPlay reports whether the match is currently being played (live or at the break).
func (s MatchStatus) InPlay() bool {
	return s == StatusLive || s == StatusHalftime
}

type EventType string

const (
	EventGoal         EventType = "goal"
	EventYellowCard   EventType = "yellow_card"
	EventRedCard      EventType = "red_card"
	EventSubstitution EventType = "substitution"
	EventPenalty      EventType = "penalty"
	EventOwnGoal      EventType = "own_goal"
)

type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

type Score struct {
	Home int `bson:"home" json:"home"`
	Away int `bson:"away" json:"away"`
}

type MatchScore struct {
	Home     int    `bson:"home" json:"home"`
	Away     int    `bson:"away" json:"away"`
	Halftime *Score `bson:"halftime,omitempty" json:"halftime,omitempty"`
	Fulltime *Score `bson:"fulltime,omitempty" json:"fulltime,omitempty"`
}

// Current returns the running home/away score without the recorded snapshots.
func (s MatchScore) Current() Score {
	return Score{Home: s.Home, Away: s.Away}
}

type TeamStat struct {
	Home int `bson:"home" json:"home"`
	Away int `bson:"away" json:"away"`
}

type Team struct {
	ID        string `bson:"id,omitempty" json:"id,omitempty"`
	Name      string `bson:"name" json:"name"`
	ShortName string `bson:"short_name,omitempty" json:"short_name,omitempty"`
}

type League struct {
	ID      string `bson:"id,omitempty" json:"id,omitempty"`
	Name    string `bson:"name,omitempty" json:"name,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
}

type MatchEvent struct {
	Type        EventType `bson:"type" json:"type"`
	Minute      int       `bson:"minute" json:"minute"`
	Player      string    `bson:"player" json:"player"`
	Team        Side      `bson:"team" json:"team"`
	Assist      string    `bson:"assist,omitempty" json:"assist,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
}

// EventSignature identifies an event for deduplication. Assist and
// description are deliberately not part of it.
type EventSignature struct {
	Type   EventType
	Minute int
	Player string
	Team   Side
}

func (e MatchEvent) Signature() EventSignature {
	return EventSignature{Type: e.Type, Minute: e.Minute, Player: e.Player, Team: e.Team}
}

func (s EventSignature) String() string {
	return fmt.Sprintf("%s_%d_%s_%s", s.Type, s.Minute, s.Player, s.Team)
}

// MatchSnapshot is the reconciled record stored in the matches collection.
type MatchSnapshot struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ExternalID string              `bson:"external_id" json:"external_id"`
	HomeTeam   Team                `bson:"home_team" json:"home_team"`
	AwayTeam   Team                `bson:"away_team" json:"away_team"`
	League     *League             `bson:"league,omitempty" json:"league,omitempty"`
	MatchDate  time.Time           `bson:"match_date" json:"match_date"`
	Status     MatchStatus         `bson:"status" json:"status"`
	Minute     *int                `bson:"minute,omitempty" json:"minute,omitempty"`
	Score      MatchScore          `bson:"score" json:"score"`
	Events     []MatchEvent        `bson:"events" json:"events"`
	Statistics map[string]TeamStat `bson:"statistics,omitempty" json:"statistics,omitempty"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time           `bson:"updated_at" json:"updated_at"`
}

// EntityID is the identifier used in channel names: the external id when
// known, the storage id otherwise.
func (m *MatchSnapshot) EntityID() string {
	if m.ExternalID != "" {
		return m.ExternalID
	}
	return m.ID.Hex()
}

func (m *MatchSnapshot) LeagueID() string {
	if m.League == nil {
		return ""
	}
	return m.League.ID
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (m *MatchSnapshot) Clone() *MatchSnapshot {
	if m == nil {
		return nil
	}
	out := *m
	if m.League != nil {
		l := *m.League
		out.League = &l
	}
	if m.Minute != nil {
		v := *m.Minute
		out.Minute = &v
	}
	if m.Score.Halftime != nil {
		ht := *m.Score.Halftime
		out.Score.Halftime = &ht
	}
	if m.Score.Fulltime != nil {
		ft := *m.Score.Fulltime
		out.Score.Fulltime = &ft
	}
	if m.Events != nil {
		out.Events = append([]MatchEvent(nil), m.Events...)
	}
	if m.Statistics != nil {
		out.Statistics = make(map[string]TeamStat, len(m.Statistics))
		for k, v := range m.Statistics {
			out.Statistics[k] = v
		}
	}
	return &out
}

// MatchPatch is the partial document written by an update. Nil fields are
// left untouched in the store.
type MatchPatch struct {
	Status     *MatchStatus        `bson:"status,omitempty"`
	Minute     *int                `bson:"minute,omitempty"`
	Score      *MatchScore         `bson:"score,omitempty"`
	Events     []MatchEvent        `bson:"events,omitempty"`
	Statistics map[string]TeamStat `bson:"statistics,omitempty"`
	HomeTeam   *Team               `bson:"home_team,omitempty"`
	AwayTeam   *Team               `bson:"away_team,omitempty"`
	League     *League             `bson:"league,omitempty"`
	MatchDate  *time.Time          `bson:"match_date,omitempty"`
	UpdatedAt  time.Time           `bson:"updated_at"`
}

// PatchFrom builds a patch carrying every mutable field of m.
func PatchFrom(m *MatchSnapshot) MatchPatch {
	p := MatchPatch{
		Status:     &m.Status,
		Minute:     m.Minute,
		Score:      &m.Score,
		Events:     m.Events,
		Statistics: m.Statistics,
		League:     m.League,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.HomeTeam.Name != "" {
		p.HomeTeam = &m.HomeTeam
	}
	if m.AwayTeam.Name != "" {
		p.AwayTeam = &m.AwayTeam
	}
	if !m.MatchDate.IsZero() {
		p.MatchDate = &m.MatchDate
	}
	return p
}

// Apply copies the non-nil fields of p onto m.
func (p MatchPatch) Apply(m *MatchSnapshot) {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Minute != nil {
		v := *p.Minute
		m.Minute = &v
	}
	if p.Score != nil {
		m.Score = *p.Score
	}
	if p.Events != nil {
		m.Events = append([]MatchEvent(nil), p.Events...)
	}
	if p.Statistics != nil {
		m.Statistics = p.Statistics
	}
	if p.HomeTeam != nil {
		m.HomeTeam = *p.HomeTeam
	}
	if p.AwayTeam != nil {
		m.AwayTeam = *p.AwayTeam
	}
	if p.League != nil {
		l := *p.League
		m.League = &l
	}
	if p.MatchDate != nil {
		m.MatchDate = *p.MatchDate
	}
	m.UpdatedAt = p.UpdatedAt
}
