package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"livescore/internal/livescore/model"
	"livescore/pkg/config"
)

// HTTPFetcher calls JSON endpoints directly.
type HTTPFetcher struct {
	Log        *zap.Logger
	HTTPClient *http.Client

	Snapshot   model.SourceEndpoint
	Events     model.SourceEndpoint
	Upcoming   model.SourceEndpoint
	UserAgents []string

	next atomic.Uint64
}

func NewHTTPFetcher(cfg config.FetcherConfig, log *zap.Logger) *HTTPFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPFetcher{
		Log:        log,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Snapshot:   cfg.Snapshot,
		Events:     cfg.Events,
		Upcoming:   cfg.Upcoming,
		UserAgents: cfg.UserAgents,
	}
}

func (f *HTTPFetcher) FetchSnapshot(ctx context.Context, externalID string) (*model.RawSnapshot, error) {
	body, err := f.do(ctx, OpSnapshot, externalID, f.Snapshot, snapshotVars(externalID))
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := decodeSnapshot(body, f.Snapshot)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, decodeFailure(OpSnapshot, externalID, err)
	}
	return raw, nil
}

func (f *HTTPFetcher) FetchEventDelta(ctx context.Context, externalID string) ([]model.RawEvent, error) {
	body, err := f.do(ctx, OpEvents, externalID, f.Events, snapshotVars(externalID))
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	events, err := decodeEvents(body, f.Events)
	if err != nil {
		return nil, decodeFailure(OpEvents, externalID, err)
	}
	return events, nil
}

func (f *HTTPFetcher) FetchUpcoming(ctx context.Context, daysAhead int) ([]model.RawFixture, error) {
	body, err := f.do(ctx, OpUpcoming, "", f.Upcoming, upcomingVars(daysAhead))
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fixtures, err := decodeFixtures(body, f.Upcoming)
	if err != nil {
		return nil, decodeFailure(OpUpcoming, "", err)
	}
	return fixtures, nil
}

// do performs one request. A 404 reports errAbsent; any other failure is a
// *model.FetchError.
func (f *HTTPFetcher) do(ctx context.Context, op, externalID string, ep model.SourceEndpoint, vars map[string]string) ([]byte, error) {
	if ep.URL == "" {
		return nil, &model.FetchError{Op: op, ExternalID: externalID, Err: errors.New("endpoint not configured")}
	}

	req, err := f.buildHTTPRequest(ctx, ep, vars)
	if err != nil {
		return nil, &model.FetchError{Op: op, ExternalID: externalID, Err: err}
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		f.Log.Warn("Failed to fetch source",
			zap.String("endpoint", ep.Name),
			zap.String("externalId", externalID),
			zap.Error(err),
		)
		return nil, &model.FetchError{Op: op, ExternalID: externalID, Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			f.Log.Warn("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, errAbsent
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.FetchError{Op: op, ExternalID: externalID, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.FetchError{
			Op:         op,
			ExternalID: externalID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", http.StatusText(resp.StatusCode)),
		}
	}

	f.Log.Debug("Fetched source response",
		zap.String("endpoint", ep.Name),
		zap.String("externalId", externalID),
		zap.Int("bodySize", len(body)),
	)
	return body, nil
}

func (f *HTTPFetcher) buildHTTPRequest(ctx context.Context, ep model.SourceEndpoint, vars map[string]string) (*http.Request, error) {
	var req *http.Request
	var err error

	target := expand(ep.URL, vars)
	params := make(map[string]string, len(ep.Params))
	for k, v := range ep.Params {
		params[k] = expand(v, vars)
	}

	switch strings.ToUpper(ep.Method) {
	case "", "GET":
		u, perr := url.Parse(target)
		if perr != nil {
			return nil, perr
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)

	case "POST/JSON":
		jsonData, merr := json.Marshal(params)
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(jsonData))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}

	case "POST/FORM":
		form := url.Values{}
		for k, v := range params {
			form.Set(k, v)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

	default:
		return nil, fmt.Errorf("unsupported method: %s", ep.Method)
	}
	if err != nil {
		return nil, err
	}

	if ua := f.userAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	// 配置的请求头优先于轮换的 UA
	for k, v := range ep.Headers {
		req.Header.Set(k, expand(v, vars))
	}
	return req, nil
}

func (f *HTTPFetcher) userAgent() string {
	if len(f.UserAgents) == 0 {
		return ""
	}
	n := f.next.Add(1) - 1
	return f.UserAgents[n%uint64(len(f.UserAgents))]
}
