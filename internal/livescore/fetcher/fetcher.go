package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"livescore/internal/livescore/model"
	"livescore/pkg/config"
)

// Fetcher reads match data from the external source. A nil snapshot with a
// nil error means the source does not know the match. Content the source
// sent in the wrong shape is a *model.ValidationError; every other failure
// is a *model.FetchError.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, externalID string) (*model.RawSnapshot, error)
	FetchEventDelta(ctx context.Context, externalID string) ([]model.RawEvent, error)
	FetchUpcoming(ctx context.Context, daysAhead int) ([]model.RawFixture, error)
}

const (
	OpSnapshot = "snapshot"
	OpEvents   = "events"
	OpUpcoming = "upcoming"
)

var errAbsent = errors.New("absent")

// New picks the implementation configured by cfg.Mode.
func New(cfg config.FetcherConfig, log *zap.Logger) (Fetcher, error) {
	switch cfg.Mode {
	case "", "http":
		return NewHTTPFetcher(cfg, log), nil
	case "browser":
		return NewBrowserFetcher(cfg, log), nil
	default:
		return nil, fmt.Errorf("fetcher: unknown mode %q", cfg.Mode)
	}
}

// expand substitutes {id} and {days} placeholders.
func expand(s string, vars map[string]string) string {
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func snapshotVars(externalID string) map[string]string {
	return map[string]string{"id": url.PathEscape(externalID)}
}

func upcomingVars(days int) map[string]string {
	return map[string]string{"days": strconv.Itoa(days)}
}

// extract returns the payload of a JSON document, honouring the endpoint's
// data field. A missing or null payload reports errAbsent.
func extract(body []byte, dataField string) (json.RawMessage, error) {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return nil, errAbsent
	}
	if dataField == "" {
		if string(body) == "null" {
			return nil, errAbsent
		}
		return body, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("top-level is not JSON object: %w", err)
	}
	data, ok := obj[dataField]
	if !ok || string(data) == "null" {
		return nil, errAbsent
	}
	return data, nil
}

// decodeValue decodes one payload element. Content of the wrong shape
// becomes a *model.ValidationError carrying the element; broken JSON stays a
// plain error.
func decodeValue(data json.RawMessage, field string, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return err
	}
	verr := &model.ValidationError{Field: field, Reason: err.Error(), Raw: data}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		if te.Field != "" {
			verr.Field = joinField(field, te.Field)
		}
		verr.Reason = fmt.Sprintf("expected %s, got %s", te.Type, te.Value)
	}
	return verr
}

func joinField(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// decodeFailure classifies a decode error for the caller: validation
// rejections pass through, everything else is a *model.FetchError.
func decodeFailure(op, externalID string, err error) error {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &model.FetchError{Op: op, ExternalID: externalID, Err: err}
}

func decodeSnapshot(body []byte, ep model.SourceEndpoint) (*model.RawSnapshot, error) {
	data, err := extract(body, ep.DataField)
	if err != nil {
		return nil, err
	}
	var raw model.RawSnapshot
	if err := decodeValue(data, "", &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &raw, nil
}

// decodeEvents decodes an event delta element by element. One malformed
// event rejects the delta as a whole.
func decodeEvents(body []byte, ep model.SourceEndpoint) ([]model.RawEvent, error) {
	data, err := extract(body, ep.DataField)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := decodeValue(data, "events", &items); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	events := make([]model.RawEvent, 0, len(items))
	for i, item := range items {
		var ev model.RawEvent
		if err := decodeValue(item, fmt.Sprintf("events[%d]", i), &ev); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// decodeFixtures decodes a fixture list element by element. A malformed
// fixture is kept in the list with Invalid set so the rest of the batch
// still goes through.
func decodeFixtures(body []byte, ep model.SourceEndpoint) ([]model.RawFixture, error) {
	data, err := extract(body, ep.DataField)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := decodeValue(data, "fixtures", &items); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	fixtures := make([]model.RawFixture, 0, len(items))
	for i, item := range items {
		var fx model.RawFixture
		if err := decodeValue(item, fmt.Sprintf("fixtures[%d]", i), &fx); err != nil {
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				return nil, fmt.Errorf("decode fixtures: %w", err)
			}
			fx = model.RawFixture{ExternalID: fixtureID(item), Invalid: verr}
		}
		fixtures = append(fixtures, fx)
	}
	return fixtures, nil
}

// fixtureID reads external_id from an element that failed to decode, for logging.
func fixtureID(item json.RawMessage) string {
	var head struct {
		ExternalID json.RawMessage `json:"external_id"`
	}
	if json.Unmarshal(item, &head) != nil || len(head.ExternalID) == 0 {
		return ""
	}
	var id string
	if json.Unmarshal(head.ExternalID, &id) == nil {
		return id
	}
	return strings.Trim(string(head.ExternalID), `"`)
}
