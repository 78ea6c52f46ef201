package reconciler

import (
	"sort"
	"time"

	"livescore/internal/livescore/model"
)

// Reconcile merges a validated snapshot into the stored record for the same
// external id. existing may be nil, in which case a new record is built and
// isNew is true. The returned snapshot never aliases existing.
func Reconcile(externalID string, valid *model.ValidSnapshot, existing *model.MatchSnapshot, now time.Time) (*model.MatchSnapshot, bool) {
	now = now.UTC()
	isNew := existing == nil

	var merged *model.MatchSnapshot
	if isNew {
		merged = &model.MatchSnapshot{
			ExternalID: externalID,
			Status:     model.StatusScheduled,
			Events:     []model.MatchEvent{},
			CreatedAt:  now,
		}
	} else {
		merged = existing.Clone()
		if merged.Events == nil {
			merged.Events = []model.MatchEvent{}
		}
	}
	merged.UpdatedAt = now

	if valid.Status != "" {
		merged.Status = valid.Status
	}
	// Recorded halftime/fulltime scores survive; only the running score is replaced.
	merged.Score.Home = valid.Score.Home
	merged.Score.Away = valid.Score.Away
	if valid.Minute != nil {
		m := *valid.Minute
		merged.Minute = &m
	}
	if valid.Statistics != nil {
		merged.Statistics = valid.Statistics
	}
	if valid.HomeTeam != nil {
		merged.HomeTeam = *valid.HomeTeam
	}
	if valid.AwayTeam != nil {
		merged.AwayTeam = *valid.AwayTeam
	}
	if valid.League != nil {
		l := *valid.League
		merged.League = &l
	}
	if valid.MatchDate != nil {
		merged.MatchDate = valid.MatchDate.UTC()
	}

	if len(valid.Events) > 0 {
		merged.Events, _ = MergeEvents(merged.Events, valid.Events)
	}

	CaptureScores(merged)
	return merged, isNew
}

// CaptureScores records the halftime score the first time a match is at
// halftime and rewrites the fulltime score whenever it is finished.
func CaptureScores(m *model.MatchSnapshot) {
	current := m.Score.Current()
	switch m.Status {
	case model.StatusHalftime:
		if m.Score.Halftime == nil {
			m.Score.Halftime = &current
		}
	case model.StatusFinished:
		m.Score.Fulltime = &current
	}
}

// MergeEvents appends every incoming event whose signature is not already
// present and re-sorts by minute. It returns the merged list and the events
// that were added. Replaying the same incoming list is a no-op.
func MergeEvents(existing, incoming []model.MatchEvent) ([]model.MatchEvent, []model.MatchEvent) {
	seen := make(map[model.EventSignature]struct{}, len(existing)+len(incoming))
	merged := make([]model.MatchEvent, 0, len(existing)+len(incoming))
	for _, e := range existing {
		seen[e.Signature()] = struct{}{}
		merged = append(merged, e)
	}

	var added []model.MatchEvent
	for _, e := range incoming {
		sig := e.Signature()
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		merged = append(merged, e)
		added = append(added, e)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Minute < merged[j].Minute })
	return merged, added
}
