package reconciler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"livescore/internal/livescore/helper"
	"livescore/internal/livescore/model"
	"livescore/internal/livescore/store"
)

const (
	DefaultDuplicateTolerance = 3 * time.Hour
	DefaultRefreshLimit       = 100
)

// Service runs reconciliation against a MatchStore.
type Service struct {
	Log   *zap.Logger
	Store store.MatchStore
	Now   func() time.Time
}

func NewService(log *zap.Logger, st store.MatchStore) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Log: log, Store: st, Now: time.Now}
}

// Change describes the outcome of one reconciliation.
type Change struct {
	Match *model.MatchSnapshot
	// Previous is the stored record before the merge; nil when IsNew.
	Previous    *model.MatchSnapshot
	IsNew       bool
	AddedEvents []model.MatchEvent
}

// StatusChanged reports whether an existing match moved to another status.
func (c *Change) StatusChanged() bool {
	return c.Previous != nil && c.Previous.Status != c.Match.Status
}

// ScoreChanged reports whether the running score of an existing match moved.
func (c *Change) ScoreChanged() bool {
	return c.Previous != nil && c.Previous.Score.Current() != c.Match.Score.Current()
}

// Upsert reconciles valid into the record for externalID, inserting it when
// unseen. isNew reports whether a record was created.
func (s *Service) Upsert(ctx context.Context, externalID string, valid *model.ValidSnapshot) (*model.MatchSnapshot, bool, error) {
	c, err := s.Apply(ctx, externalID, valid)
	if err != nil {
		return nil, false, err
	}
	return c.Match, c.IsNew, nil
}

// Apply is Upsert that also reports what changed.
func (s *Service) Apply(ctx context.Context, externalID string, valid *model.ValidSnapshot) (*Change, error) {
	existing, err := s.Store.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, &model.StoreError{Op: "find_by_external_id", Err: err}
	}

	merged, isNew := Reconcile(externalID, valid, existing, s.Now())
	if isNew {
		err := s.Store.Insert(ctx, merged)
		if err == nil {
			s.Log.Info("Match created",
				zap.String("externalId", externalID),
				zap.String("id", merged.ID.Hex()),
				zap.String("status", string(merged.Status)),
			)
			return &Change{Match: merged, IsNew: true, AddedEvents: merged.Events}, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, &model.StoreError{Op: "insert", Err: err}
		}
		// A concurrent run inserted the same external id first; merge into it.
		s.Log.Warn("Concurrent insert detected, merging into stored match", zap.String("externalId", externalID))
		existing, err = s.Store.FindByExternalID(ctx, externalID)
		if err != nil {
			return nil, &model.StoreError{Op: "find_by_external_id", Err: err}
		}
		if existing == nil {
			return nil, &model.StoreError{Op: "insert", Err: store.ErrDuplicateKey}
		}
		merged, _ = Reconcile(externalID, valid, existing, s.Now())
	}

	if err := s.Store.UpdateFields(ctx, merged.ID.Hex(), model.PatchFrom(merged)); err != nil {
		return nil, &model.StoreError{Op: "update_fields", Err: err}
	}
	s.Log.Debug("Match updated",
		zap.String("externalId", externalID),
		zap.String("status", string(merged.Status)),
		zap.Int("events", len(merged.Events)),
	)
	_, added := MergeEvents(existing.Events, merged.Events)
	return &Change{Match: merged, Previous: existing, AddedEvents: added}, nil
}

// AddEvents merges an event delta into a stored match and returns the events
// that were new.
func (s *Service) AddEvents(ctx context.Context, match *model.MatchSnapshot, events []model.MatchEvent) ([]model.MatchEvent, error) {
	merged, added := MergeEvents(match.Events, events)
	if len(added) == 0 {
		return nil, nil
	}
	now := s.Now().UTC()
	patch := model.MatchPatch{Events: merged, UpdatedAt: now}
	if err := s.Store.UpdateFields(ctx, match.ID.Hex(), patch); err != nil {
		return nil, &model.StoreError{Op: "update_fields", Err: err}
	}
	match.Events = merged
	match.UpdatedAt = now
	for _, e := range added {
		s.Log.Info("New match event detected",
			zap.String("externalId", match.ExternalID),
			zap.String("type", string(e.Type)),
			zap.Int("minute", e.Minute),
			zap.String("player", e.Player),
		)
	}
	return added, nil
}

// DetectDuplicate looks for a stored match between the same teams kicking off
// within tolerance of matchDate. It only reports; merging is left to an operator.
func (s *Service) DetectDuplicate(ctx context.Context, homeTeam, awayTeam string, matchDate time.Time, tolerance time.Duration) (*model.MatchSnapshot, error) {
	if tolerance <= 0 {
		tolerance = DefaultDuplicateTolerance
	}
	from := matchDate.Add(-tolerance).UTC()
	to := matchDate.Add(tolerance).UTC()
	found, err := s.Store.Find(ctx, store.Query{
		HomeTeam: homeTeam,
		AwayTeam: awayTeam,
		DateFrom: &from,
		DateTo:   &to,
		Limit:    1,
	})
	if err != nil {
		return nil, &model.StoreError{Op: "find", Err: err}
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// NeedingRefresh selects matches worth crawling now: everything live or at
// halftime, plus scheduled matches kicking off on the current UTC day.
func (s *Service) NeedingRefresh(ctx context.Context, limit int) ([]model.MatchSnapshot, error) {
	if limit <= 0 {
		limit = DefaultRefreshLimit
	}
	dayStart, dayEnd := helper.UTCDayBounds(s.Now())
	found, err := s.Store.Find(ctx, store.Query{
		Any: []store.Query{
			{Statuses: []model.MatchStatus{model.StatusLive, model.StatusHalftime}},
			{Statuses: []model.MatchStatus{model.StatusScheduled}, DateFrom: &dayStart, DateTo: &dayEnd},
		},
		Sort:  store.SortMatchDateDesc,
		Limit: limit,
	})
	if err != nil {
		return nil, &model.StoreError{Op: "find", Err: err}
	}
	return found, nil
}

// Live returns matches currently in play.
func (s *Service) Live(ctx context.Context, limit int) ([]model.MatchSnapshot, error) {
	found, err := s.Store.Find(ctx, store.Query{
		Statuses: []model.MatchStatus{model.StatusLive, model.StatusHalftime},
		Sort:     store.SortMatchDateDesc,
		Limit:    limit,
	})
	if err != nil {
		return nil, &model.StoreError{Op: "find", Err: err}
	}
	return found, nil
}

// Today returns matches kicking off on the current UTC day, earliest first.
func (s *Service) Today(ctx context.Context) ([]model.MatchSnapshot, error) {
	dayStart, dayEnd := helper.UTCDayBounds(s.Now())
	found, err := s.Store.Find(ctx, store.Query{DateFrom: &dayStart, DateTo: &dayEnd, Sort: store.SortMatchDateAsc})
	if err != nil {
		return nil, &model.StoreError{Op: "find", Err: err}
	}
	return found, nil
}

// Upcoming returns scheduled matches from now until days ahead.
func (s *Service) Upcoming(ctx context.Context, days int) ([]model.MatchSnapshot, error) {
	if days <= 0 {
		days = 7
	}
	from := s.Now().UTC()
	to := from.Add(time.Duration(days) * 24 * time.Hour)
	found, err := s.Store.Find(ctx, store.Query{
		Statuses: []model.MatchStatus{model.StatusScheduled},
		DateFrom: &from,
		DateTo:   &to,
		Sort:     store.SortMatchDateAsc,
	})
	if err != nil {
		return nil, &model.StoreError{Op: "find", Err: err}
	}
	return found, nil
}

// Get resolves id as a storage id first, then as an external id.
func (s *Service) Get(ctx context.Context, id string) (*model.MatchSnapshot, error) {
	m, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, &model.StoreError{Op: "find_by_id", Err: err}
	}
	if m != nil {
		return m, nil
	}
	m, err = s.Store.FindByExternalID(ctx, id)
	if err != nil {
		return nil, &model.StoreError{Op: "find_by_external_id", Err: err}
	}
	return m, nil
}
