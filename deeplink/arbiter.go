package deeplink

import (
	"context"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/todotomorrow/go-client/core"
)

const defaultDedupWindow = 30 * time.Second

// ArbiterConfig wires the candidate deep link sources. Bridge and InitialURL
// are both optional; an arbiter with neither only serves live events.
type ArbiterConfig struct {
	Bridge      core.CaptureBridge
	InitialURL  core.InitialURLQuery
	Retry       core.InitialURLConfig
	DedupWindow time.Duration
	Logger      core.Logger
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Arbiter collapses up to three racing observers of one physical link-open
// event into at most one pending deep link. It never fails outward: source
// errors are logged and the next source is consulted; no deep link at all is
// a valid terminal outcome.
type Arbiter struct {
	bridge      core.CaptureBridge
	initialURL  core.InitialURLQuery
	retry       core.InitialURLConfig
	dedupWindow time.Duration
	logger      core.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	seen       map[string]linkRecord
	pending    core.RawDeepLink
	hasPending bool
}

// linkRecord tracks one literal URL inside the dedup window. handled flips
// when the link is released to the verification pipeline; an observed but
// unhandled URL can still be taken exactly once.
type linkRecord struct {
	at      time.Time
	handled bool
}

func NewArbiter(cfg ArbiterConfig) *Arbiter {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	window := cfg.DedupWindow
	if window <= 0 {
		window = defaultDedupWindow
	}
	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	return &Arbiter{
		bridge:      cfg.Bridge,
		initialURL:  cfg.InitialURL,
		retry:       retry,
		dedupWindow: window,
		logger:      glog.Ensure(cfg.Logger),
		now:         now,
		sleep:       sleep,
		seen:        map[string]linkRecord{},
	}
}

type candidate struct {
	source core.DeepLinkSource
	fetch  func(ctx context.Context) (string, error)
}

// Resolve drains the pending observed link if one waits, then runs the
// startup arbitration: the native capture bridge first (authoritative for
// the intent-already-consumed race), then the OS initial-URL query with
// bounded backoff. The first non-empty candidate wins; every failure is
// non-fatal.
func (a *Arbiter) Resolve(ctx context.Context) (core.RawDeepLink, bool) {
	if a == nil {
		return core.RawDeepLink{}, false
	}
	if link, ok := a.takePending(); ok {
		return link, true
	}

	candidates := []candidate{}
	if a.bridge != nil {
		candidates = append(candidates, candidate{
			source: core.DeepLinkSourceNativeCapture,
			fetch:  a.bridge.StoredDeepLink,
		})
	}
	if a.initialURL != nil {
		candidates = append(candidates, candidate{
			source: core.DeepLinkSourceInitialQuery,
			fetch:  a.fetchInitialURLWithRetry,
		})
	}

	for _, c := range candidates {
		rawURL, err := c.fetch(ctx)
		if err != nil {
			a.logger.Error("deep link source failed", "source", string(c.source), "error", err.Error())
			continue
		}
		if link, ok := a.accept(rawURL, c.source, true); ok {
			return link, true
		}
	}
	return core.RawDeepLink{}, false
}

// Observe records a "while running" link event. Each event is an independent
// pending deep link; an identical literal URL inside the dedup window is
// dropped (first observation wins). The accepted link parks in the pending
// slot until Resolve or Take hands it off; the slot is single-assignment, so
// a link observed while another waits stays takeable by URL but does not
// replace it.
func (a *Arbiter) Observe(rawURL string, source core.DeepLinkSource) (core.RawDeepLink, bool) {
	if a == nil {
		return core.RawDeepLink{}, false
	}
	if source == "" {
		source = core.DeepLinkSourceLiveEvent
	}
	link, ok := a.accept(rawURL, source, false)
	if !ok {
		return core.RawDeepLink{}, false
	}

	a.mu.Lock()
	if !a.hasPending {
		a.pending = link
		a.hasPending = true
	}
	a.mu.Unlock()
	return link, true
}

// Take releases an explicitly delivered URL to the handling pipeline. A URL
// already handled inside the dedup window is rejected; one observed but
// still pending is released exactly once.
func (a *Arbiter) Take(rawURL string, source core.DeepLinkSource) (core.RawDeepLink, bool) {
	if a == nil {
		return core.RawDeepLink{}, false
	}
	if source == "" {
		source = core.DeepLinkSourceLiveEvent
	}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return core.RawDeepLink{}, false
	}
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if rec, ok := a.seen[rawURL]; ok && now.Sub(rec.at) < a.dedupWindow {
		if rec.handled {
			a.logger.Info("duplicate deep link dropped", "source", string(source))
			return core.RawDeepLink{}, false
		}
		rec.handled = true
		a.seen[rawURL] = rec
		if a.hasPending && a.pending.URL == rawURL {
			link := a.pending
			a.pending = core.RawDeepLink{}
			a.hasPending = false
			return link, true
		}
		return core.RawDeepLink{URL: rawURL, ObservedAt: rec.at, Source: source}, true
	}

	a.seen[rawURL] = linkRecord{at: now, handled: true}
	return core.RawDeepLink{URL: rawURL, ObservedAt: now, Source: source}, true
}

func (a *Arbiter) takePending() (core.RawDeepLink, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasPending {
		return core.RawDeepLink{}, false
	}
	link := a.pending
	a.pending = core.RawDeepLink{}
	a.hasPending = false
	if rec, ok := a.seen[link.URL]; ok {
		rec.handled = true
		a.seen[link.URL] = rec
	}
	return link, true
}

// Consume clears the capture bridge's stored copy once the pending deep link
// has been handed off, so an app restart does not replay it.
func (a *Arbiter) Consume(ctx context.Context, link core.RawDeepLink) {
	if a == nil || a.bridge == nil {
		return
	}
	if err := a.bridge.ClearStoredDeepLink(ctx); err != nil {
		a.logger.Error("clear stored deep link failed", "error", err.Error())
	}
}

func (a *Arbiter) accept(rawURL string, source core.DeepLinkSource, handled bool) (core.RawDeepLink, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return core.RawDeepLink{}, false
	}
	observedAt := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if rec, ok := a.seen[rawURL]; ok && observedAt.Sub(rec.at) < a.dedupWindow {
		a.logger.Info("duplicate deep link dropped", "source", string(source))
		return core.RawDeepLink{}, false
	}
	a.seen[rawURL] = linkRecord{at: observedAt, handled: handled}

	return core.RawDeepLink{
		URL:        rawURL,
		ObservedAt: observedAt,
		Source:     source,
	}, true
}

// fetchInitialURLWithRetry retries the OS query because it is observed to
// return empty transiently even when a link launched the app. Delay grows
// linearly with the attempt number.
func (a *Arbiter) fetchInitialURLWithRetry(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.retry.MaxAttempts; attempt++ {
		rawURL, err := a.initialURL(ctx)
		if err != nil {
			lastErr = err
		} else if strings.TrimSpace(rawURL) != "" {
			return rawURL, nil
		}
		if attempt == a.retry.MaxAttempts {
			break
		}
		if err := a.sleep(ctx, a.retry.BaseDelay*time.Duration(attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
