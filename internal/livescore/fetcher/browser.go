package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"livescore/internal/livescore/model"
	"livescore/pkg/config"
)

// BrowserFetcher renders each endpoint in headless Chrome and reads the
// JSON document produced by Expression. Only GET endpoints are supported.
type BrowserFetcher struct {
	Log *zap.Logger

	Snapshot   model.SourceEndpoint
	Events     model.SourceEndpoint
	Upcoming   model.SourceEndpoint
	Wait       time.Duration
	Timeout    time.Duration
	Expression string

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
}

// NewBrowserFetcher prepares the Chrome allocator. The browser process is
// only started on the first fetch.
func NewBrowserFetcher(cfg config.FetcherConfig, log *zap.Logger) *BrowserFetcher {
	if log == nil {
		log = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !cfg.Browser.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	)
	if len(cfg.UserAgents) > 0 {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgents[0]))
	}
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Browser.ExecPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	expr := cfg.Browser.Expression
	if expr == "" {
		expr = "document.body.innerText"
	}
	return &BrowserFetcher{
		Log:         log,
		Snapshot:    cfg.Snapshot,
		Events:      cfg.Events,
		Upcoming:    cfg.Upcoming,
		Wait:        cfg.Browser.Wait,
		Timeout:     cfg.Timeout,
		Expression:  expr,
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
	}
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.cancelAlloc()
}

func (b *BrowserFetcher) FetchSnapshot(ctx context.Context, externalID string) (*model.RawSnapshot, error) {
	body, err := b.render(ctx, OpSnapshot, externalID, b.Snapshot, snapshotVars(externalID))
	if err != nil {
		return nil, err
	}
	raw, err := decodeSnapshot(body, b.Snapshot)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, decodeFailure(OpSnapshot, externalID, err)
	}
	return raw, nil
}

func (b *BrowserFetcher) FetchEventDelta(ctx context.Context, externalID string) ([]model.RawEvent, error) {
	body, err := b.render(ctx, OpEvents, externalID, b.Events, snapshotVars(externalID))
	if err != nil {
		return nil, err
	}
	events, err := decodeEvents(body, b.Events)
	if err != nil {
		return nil, decodeFailure(OpEvents, externalID, err)
	}
	return events, nil
}

func (b *BrowserFetcher) FetchUpcoming(ctx context.Context, daysAhead int) ([]model.RawFixture, error) {
	body, err := b.render(ctx, OpUpcoming, "", b.Upcoming, upcomingVars(daysAhead))
	if err != nil {
		return nil, err
	}
	fixtures, err := decodeFixtures(body, b.Upcoming)
	if err != nil {
		return nil, decodeFailure(OpUpcoming, "", err)
	}
	return fixtures, nil
}

func (b *BrowserFetcher) render(ctx context.Context, op, externalID string, ep model.SourceEndpoint, vars map[string]string) ([]byte, error) {
	target, err := pageURL(ep, vars)
	if err != nil {
		return nil, &model.FetchError{Op: op, ExternalID: externalID, Err: err}
	}

	tabCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()
	if b.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		tabCtx, cancelTimeout = context.WithTimeout(tabCtx, b.Timeout)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var text string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.Sleep(b.Wait),
		chromedp.Evaluate(b.Expression, &text),
	)
	if err != nil {
		b.Log.Warn("Failed to render source page",
			zap.String("endpoint", ep.Name),
			zap.String("externalId", externalID),
			zap.Error(err),
		)
		return nil, &model.FetchError{Op: op, ExternalID: externalID, Err: err}
	}
	return []byte(text), nil
}

// pageURL builds the address a browser navigates to. Params become query
// values since a page load cannot carry a request body.
func pageURL(ep model.SourceEndpoint, vars map[string]string) (string, error) {
	if ep.URL == "" {
		return "", errors.New("endpoint not configured")
	}
	if m := strings.ToUpper(ep.Method); m != "" && m != "GET" {
		return "", fmt.Errorf("method %s not supported in browser mode", ep.Method)
	}
	u, err := url.Parse(expand(ep.URL, vars))
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range ep.Params {
		q.Set(k, expand(v, vars))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
