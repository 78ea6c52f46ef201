package model

import "time"

// RawSnapshot is a match as returned by the external source, before validation.
type RawSnapshot struct {
	Score      *RawScore              `json:"score"`
	Minute     *int                   `json:"minute,omitempty"`
	Status     string                 `json:"status"`
	Events     []RawEvent             `json:"events,omitempty"`
	Statistics map[string]RawTeamStat `json:"statistics,omitempty"`
	HomeTeam   *Team                  `json:"home_team,omitempty"`
	AwayTeam   *Team                  `json:"away_team,omitempty"`
	League     *League                `json:"league,omitempty"`
	MatchDate  *time.Time             `json:"match_date,omitempty"`
}

type RawScore struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type RawTeamStat struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type RawEvent struct {
	Type        string  `json:"type"`
	Minute      *int    `json:"minute"`
	Player      string  `json:"player"`
	Team        string  `json:"team"`
	Assist      *string `json:"assist,omitempty"`
	Description *string `json:"description,omitempty"`
}

// RawFixture is an upcoming match listed by the source.
type RawFixture struct {
	ExternalID string    `json:"external_id"`
	HomeTeam   Team      `json:"home_team"`
	AwayTeam   Team      `json:"away_team"`
	League     *League   `json:"league,omitempty"`
	MatchDate  time.Time `json:"match_date"`
	Status     string    `json:"status,omitempty"`

	// Invalid is set when the listed element could not be decoded.
	Invalid *ValidationError `json:"-"`
}

// ValidSnapshot is the output of validation. Optional fields are nil when the
// source did not report them, so a merge keeps the stored value.
type ValidSnapshot struct {
	Score      Score
	Minute     *int
	Status     MatchStatus
	Events     []MatchEvent
	Statistics map[string]TeamStat
	HomeTeam   *Team
	AwayTeam   *Team
	League     *League
	MatchDate  *time.Time
}
