package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"livescore/internal/livescore/fetcher"
	"livescore/internal/livescore/model"
	"livescore/internal/livescore/notifier"
	"livescore/internal/livescore/reconciler"
	"livescore/internal/livescore/validator"
)

const DefaultDaysAhead = 7

// Processor runs one crawl pass: fetch, validate, reconcile, notify.
type Processor struct {
	Log        *zap.Logger
	Fetcher    fetcher.Fetcher
	Validator  *validator.Validator
	Reconciler *reconciler.Service
	Notifier   *notifier.Notifier

	RefreshLimit       int
	DuplicateTolerance time.Duration
}

func NewProcessor(log *zap.Logger, f fetcher.Fetcher, v *validator.Validator, r *reconciler.Service, n *notifier.Notifier) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		Log:                log,
		Fetcher:            f,
		Validator:          v,
		Reconciler:         r,
		Notifier:           n,
		RefreshLimit:       reconciler.DefaultRefreshLimit,
		DuplicateTolerance: reconciler.DefaultDuplicateTolerance,
	}
}

// IngestSnapshot validates and reconciles one fetched snapshot and publishes
// what changed. A validation failure is counted, not returned; only store
// failures are errors.
func (p *Processor) IngestSnapshot(ctx context.Context, externalID string, raw *model.RawSnapshot) (model.CrawlResult, error) {
	var res model.CrawlResult

	valid, err := p.Validator.Validate(raw)
	if err != nil {
		p.logRejected(externalID, raw, err)
		res.ValidationFailures++
		return res, nil
	}

	return p.IngestValid(ctx, externalID, valid)
}

func (p *Processor) notify(ctx context.Context, c *reconciler.Change) {
	if p.Notifier == nil {
		return
	}
	m := c.Match
	if c.IsNew {
		p.Notifier.PublishCreated(ctx, m)
		return
	}
	if c.StatusChanged() {
		p.Notifier.PublishStatusChange(ctx, m, c.Previous.Status)
	}
	for _, e := range c.AddedEvents {
		p.Notifier.PublishEvent(ctx, m, e)
	}
	if c.ScoreChanged() {
		p.Notifier.PublishScore(ctx, m)
	} else {
		p.Notifier.Publish(ctx, notifier.KindUpdate, m.EntityID(), m)
	}
}

// RefreshMatches re-crawls every match that needs it: live, at halftime or
// scheduled for today. A single fetch failure skips that match; the run
// fails with the fetch error only when every fetch failed.
func (p *Processor) RefreshMatches(ctx context.Context) (model.CrawlResult, error) {
	var res model.CrawlResult

	matches, err := p.Reconciler.NeedingRefresh(ctx, p.RefreshLimit)
	if err != nil {
		return res, err
	}
	p.Log.Info("Matches needing refresh", zap.Int("count", len(matches)))

	var lastFetchErr error
	attempted := 0
	for i := range matches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		externalID := matches[i].ExternalID
		if externalID == "" {
			res.Skipped++
			continue
		}
		attempted++

		raw, err := p.Fetcher.FetchSnapshot(ctx, externalID)
		if isRejected(err) {
			p.logRejected(externalID, nil, err)
			res.ValidationFailures++
			continue
		}
		if err != nil {
			p.Log.Warn("Match crawl failed", zap.String("externalId", externalID), zap.Error(err))
			res.FetchFailures++
			lastFetchErr = err
			continue
		}
		if raw == nil {
			p.Log.Debug("Match not found at source", zap.String("externalId", externalID))
			res.Skipped++
			continue
		}

		one, err := p.IngestSnapshot(ctx, externalID, raw)
		res.Add(one)
		if err != nil {
			return res, err
		}
	}

	if attempted > 0 && res.FetchFailures == attempted {
		return res, lastFetchErr
	}
	return res, nil
}

// RefreshEvents pulls the event delta of every match in play and publishes
// each event not seen before.
func (p *Processor) RefreshEvents(ctx context.Context) (model.CrawlResult, error) {
	var res model.CrawlResult

	live, err := p.Reconciler.Live(ctx, p.RefreshLimit)
	if err != nil {
		return res, err
	}

	var lastFetchErr error
	attempted := 0
	for i := range live {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		match := &live[i]
		if match.ExternalID == "" {
			res.Skipped++
			continue
		}
		attempted++

		rawEvents, err := p.Fetcher.FetchEventDelta(ctx, match.ExternalID)
		if isRejected(err) {
			p.logRejected(match.ExternalID, nil, err)
			res.ValidationFailures++
			continue
		}
		if err != nil {
			p.Log.Warn("Events crawl failed", zap.String("externalId", match.ExternalID), zap.Error(err))
			res.FetchFailures++
			lastFetchErr = err
			continue
		}
		if len(rawEvents) == 0 {
			continue
		}

		events, err := p.Validator.ValidateEvents(rawEvents)
		if err != nil {
			p.logRejected(match.ExternalID, rawEvents, err)
			res.ValidationFailures++
			continue
		}

		added, err := p.Reconciler.AddEvents(ctx, match, events)
		if err != nil {
			return res, err
		}
		if len(added) > 0 {
			res.Updated++
			res.EventsAdded += len(added)
		}
		if p.Notifier != nil {
			for _, e := range added {
				p.Notifier.PublishEvent(ctx, match, e)
			}
		}
	}

	if attempted > 0 && res.FetchFailures == attempted {
		return res, lastFetchErr
	}
	return res, nil
}

// SyncFixtures stores upcoming fixtures. A fixture whose teams and kick-off
// match a record stored under another external id is reported and skipped.
func (p *Processor) SyncFixtures(ctx context.Context, daysAhead int) (model.CrawlResult, error) {
	var res model.CrawlResult
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}

	fixtures, err := p.Fetcher.FetchUpcoming(ctx, daysAhead)
	if isRejected(err) {
		p.logRejected("", nil, err)
		res.ValidationFailures++
		return res, nil
	}
	if err != nil {
		return res, err
	}
	p.Log.Info("Fixtures crawled", zap.Int("count", len(fixtures)), zap.Int("daysAhead", daysAhead))

	for _, fx := range fixtures {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		valid, err := p.Validator.ValidateFixture(fx)
		if err != nil {
			p.logRejected(fx.ExternalID, fx, err)
			res.ValidationFailures++
			continue
		}

		existing, err := p.Reconciler.Store.FindByExternalID(ctx, fx.ExternalID)
		if err != nil {
			return res, &model.StoreError{Op: "find_by_external_id", Err: err}
		}
		// 已开赛的比赛由实时任务维护，不能被赛程覆盖
		if existing != nil && existing.Status != model.StatusScheduled {
			res.Skipped++
			continue
		}

		dup, err := p.Reconciler.DetectDuplicate(ctx, valid.HomeTeam.Name, valid.AwayTeam.Name, *valid.MatchDate, p.DuplicateTolerance)
		if err != nil {
			return res, err
		}
		if dup != nil && dup.ExternalID != fx.ExternalID {
			p.Log.Warn("Duplicate fixture detected",
				zap.String("externalId", fx.ExternalID),
				zap.String("existingExternalId", dup.ExternalID),
				zap.String("homeTeam", valid.HomeTeam.Name),
				zap.String("awayTeam", valid.AwayTeam.Name),
				zap.Time("matchDate", *valid.MatchDate),
			)
			res.DuplicatesSkipped++
			continue
		}

		one, err := p.IngestValid(ctx, fx.ExternalID, valid)
		res.Add(one)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// IngestValid reconciles an already validated snapshot.
func (p *Processor) IngestValid(ctx context.Context, externalID string, valid *model.ValidSnapshot) (model.CrawlResult, error) {
	var res model.CrawlResult
	change, err := p.Reconciler.Apply(ctx, externalID, valid)
	if err != nil {
		return res, err
	}
	p.notify(ctx, change)
	if change.IsNew {
		res.Created++
	} else {
		res.Updated++
	}
	res.EventsAdded += len(change.AddedEvents)
	return res, nil
}

func (p *Processor) logRejected(externalID string, raw any, err error) {
	fields := []zap.Field{zap.String("externalId", externalID), zap.Error(err)}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		fields = append(fields, zap.String("field", verr.Field))
	}
	switch {
	case verr != nil && len(verr.Raw) > 0:
		fields = append(fields, zap.ByteString("raw", verr.Raw))
	case raw != nil:
		if payload, merr := json.Marshal(raw); merr == nil {
			fields = append(fields, zap.ByteString("raw", payload))
		}
	}
	p.Log.Warn("Validation failed", fields...)
}

// isRejected reports whether a fetch returned content the validator would
// reject anyway: counted as a validation failure, never retried.
func isRejected(err error) bool {
	var verr *model.ValidationError
	return errors.As(err, &verr)
}
