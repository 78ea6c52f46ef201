package notifier

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"livescore/internal/livescore/bus"
	"livescore/internal/livescore/model"
)

// Kind is the update kind; the wire type is "match_<kind>".
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdate  Kind = "update"
	KindScore   Kind = "score"
	KindEvent   Kind = "event"
	KindStatus  Kind = "status"
)

// Update is the data object carried in the envelope.
type Update struct {
	MatchID   string               `json:"match_id"`
	Match     *model.MatchSnapshot `json:"match,omitempty"`
	Event     *model.MatchEvent    `json:"event,omitempty"`
	OldStatus model.MatchStatus    `json:"old_status,omitempty"`
}

// Notifier fans one logical update out to every channel interested in it:
// match:<id>, live:all while in play, league:<id> when known, and all.
// Delivery is best-effort; a failed channel never blocks the others.
type Notifier struct {
	Log       *zap.Logger
	Publisher bus.Publisher
	Now       func() time.Time
}

func New(log *zap.Logger, pub bus.Publisher) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{Log: log, Publisher: pub, Now: time.Now}
}

// Channels lists the channels an update about m is published to.
func Channels(entityID string, m *model.MatchSnapshot) []string {
	channels := []string{bus.MatchChannel(entityID)}
	if m != nil && m.Status.InPlay() {
		channels = append(channels, bus.ChannelLiveAll)
	}
	if m != nil && m.LeagueID() != "" {
		channels = append(channels, bus.LeagueChannel(m.LeagueID()))
	}
	return append(channels, bus.ChannelAll)
}

// Publish sends an update of the given kind about m. It returns how many
// channels accepted the message; failures are logged, never returned.
func (n *Notifier) Publish(ctx context.Context, kind Kind, entityID string, m *model.MatchSnapshot) int {
	return n.publish(ctx, kind, entityID, m, Update{MatchID: entityID, Match: m})
}

func (n *Notifier) PublishCreated(ctx context.Context, m *model.MatchSnapshot) int {
	return n.Publish(ctx, KindCreated, m.EntityID(), m)
}

func (n *Notifier) PublishScore(ctx context.Context, m *model.MatchSnapshot) int {
	return n.Publish(ctx, KindScore, m.EntityID(), m)
}

func (n *Notifier) PublishEvent(ctx context.Context, m *model.MatchSnapshot, event model.MatchEvent) int {
	return n.publish(ctx, KindEvent, m.EntityID(), m, Update{MatchID: m.EntityID(), Match: m, Event: &event})
}

func (n *Notifier) PublishStatusChange(ctx context.Context, m *model.MatchSnapshot, old model.MatchStatus) int {
	n.Log.Info("Match status changed",
		zap.String("matchId", m.EntityID()),
		zap.String("oldStatus", string(old)),
		zap.String("newStatus", string(m.Status)),
	)
	return n.publish(ctx, KindStatus, m.EntityID(), m, Update{MatchID: m.EntityID(), Match: m, OldStatus: old})
}

func (n *Notifier) publish(ctx context.Context, kind Kind, entityID string, m *model.MatchSnapshot, update Update) int {
	data, err := json.Marshal(update)
	if err != nil {
		n.Log.Error("Failed to marshal update", zap.String("matchId", entityID), zap.Error(err))
		return 0
	}

	msgType := "match_" + string(kind)
	ts := n.Now().UTC()
	ok := 0
	for _, ch := range Channels(entityID, m) {
		payload, err := json.Marshal(bus.Envelope{Type: msgType, Channel: ch, Data: data, Timestamp: ts})
		if err != nil {
			n.Log.Error("Failed to marshal envelope", zap.String("channel", ch), zap.Error(err))
			continue
		}
		if err := n.Publisher.Publish(ctx, ch, payload); err != nil {
			perr := &model.PublishError{Channel: ch, Err: err}
			n.Log.Warn("Publish failed", zap.String("matchId", entityID), zap.Error(perr))
			continue
		}
		ok++
	}

	n.Log.Debug("Match update published",
		zap.String("matchId", entityID),
		zap.String("type", msgType),
		zap.Int("channels", ok),
	)
	return ok
}
