// Package engine ties the feed monitor, caches, paginator and alert manager
// together behind one facade. Dashboard-facing callers subscribe for change
// notifications and pull immutable snapshots; all cache writes funnel through
// the single Run loop.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"exec-feed-sync/internal/alerts"
	"exec-feed-sync/internal/cache"
	"exec-feed-sync/internal/feed"
	"exec-feed-sync/internal/metrics"
	"exec-feed-sync/internal/notify"
	"exec-feed-sync/internal/page"
	"exec-feed-sync/internal/record"
)

// ErrClosed is returned by operations on an engine after Close.
var ErrClosed = errors.New("engine: closed")

// Feed is the slice of the connection monitor the engine consumes.
type Feed interface {
	Messages() <-chan feed.Message
	Status() feed.Status
	OnStatusChange(func(feed.Status))
}

var _ Feed = (*feed.Monitor)(nil)

// Options wires an Engine. Source and Remote are usually the same
// *upstream.Client; they are split so tests can stub them independently.
type Options struct {
	Feed     Feed
	Source   page.Source
	Remote   alerts.Remote
	PageSize int

	MaxRecords int
	MaxQuotes  int
	MaxBars    int
	MaxAlerts  int

	Metrics *metrics.Metrics

	// Notifier, when set, receives alerts at or above NotifySeverity as
	// they arrive on the stream. Delivery is asynchronous and best effort.
	Notifier       notify.Notifier
	NotifySeverity record.Severity
}

// Engine is the synchronization facade for one logical feed.
type Engine struct {
	feed    Feed
	records *cache.Store[record.Record]
	quotes  *cache.Store[record.Quote]
	bars    *cache.Store[record.Bar]
	alerts  *alerts.Manager
	pager   *page.Paginator
	metrics *metrics.Metrics
	logger  zerolog.Logger

	notifier   notify.Notifier
	notifyRank int

	mu         sync.RWMutex
	subs       map[string]*Subscription
	closed     bool
	loading    bool
	lastErr    string
	lastUpdate time.Time

	evictionsSeen map[string]uint64
}

// New builds an Engine. The caller owns the feed's connection lifecycle;
// message draining starts with Run.
func New(opts Options, logger zerolog.Logger) *Engine {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	records := cache.New[record.Record](opts.MaxRecords)

	e := &Engine{
		feed:          opts.Feed,
		records:       records,
		quotes:        cache.New[record.Quote](opts.MaxQuotes),
		bars:          cache.New[record.Bar](opts.MaxBars),
		alerts:        alerts.NewManager(opts.Remote, opts.MaxAlerts, logger),
		pager:         page.NewPaginator(opts.Source, records, opts.PageSize, logger),
		metrics:       m,
		logger:        logger.With().Str("component", "engine").Logger(),
		subs:          make(map[string]*Subscription),
		evictionsSeen: make(map[string]uint64),
		notifier:      opts.Notifier,
		notifyRank:    opts.NotifySeverity.Rank(),
	}

	e.feed.OnStatusChange(func(st feed.Status) {
		if st.State == feed.StateReconnecting {
			e.metrics.ReconnectsTotal.Inc()
		}
		e.notifyAll()
	})

	return e
}

// Run drains the feed message channel until ctx is cancelled. It is the only
// writer to the caches, so readers never observe a half-applied message.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopped")
			return ctx.Err()
		case msg := <-e.feed.Messages():
			e.apply(msg)
		}
	}
}

func (e *Engine) apply(msg feed.Message) {
	switch msg.Type {
	case feed.TypeExecutionUpdate:
		if msg.Record == nil {
			e.metrics.MessagesDropped.Inc()
			return
		}
		e.records.Upsert(*msg.Record)
	case feed.TypeAlertNew:
		if msg.Alert == nil {
			e.metrics.MessagesDropped.Inc()
			return
		}
		e.alerts.Add(*msg.Alert)
		e.pushAlert(*msg.Alert)
	case feed.TypeTick:
		if msg.Quote == nil {
			e.metrics.MessagesDropped.Inc()
			return
		}
		e.quotes.Upsert(*msg.Quote)
	case feed.TypeBar:
		if msg.Bar == nil {
			e.metrics.MessagesDropped.Inc()
			return
		}
		e.bars.Upsert(*msg.Bar)
	default:
		e.metrics.MessagesDropped.Inc()
		e.logger.Debug().Str("type", msg.Type).Msg("skipping unhandled message")
		return
	}

	e.metrics.MessagesTotal.WithLabelValues(msg.Type).Inc()
	e.syncCacheMetrics()

	e.mu.Lock()
	e.lastUpdate = time.Now()
	e.mu.Unlock()

	e.notifyAll()
}

func (e *Engine) pushAlert(a record.Alert) {
	if e.notifier == nil || a.Severity.Rank() < e.notifyRank {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.notifier.Notify(ctx, a); err != nil {
			e.logger.Warn().Err(err).Str("alert", a.ID).Msg("alert push failed")
		}
	}()
}

// LoadNext fetches the next backfill page and merges it into the record
// cache. It reports a no-op result while a load is in flight or when the
// upstream is exhausted.
func (e *Engine) LoadNext(ctx context.Context) (page.Result, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return page.Result{}, ErrClosed
	}
	e.loading = true
	e.mu.Unlock()
	e.notifyAll()

	res, err := e.pager.LoadNext(ctx)

	e.mu.Lock()
	e.loading = false
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.lastErr = ""
	}
	if res.Merged > 0 {
		e.lastUpdate = time.Now()
	}
	e.mu.Unlock()

	if res.Merged > 0 {
		e.metrics.PagesLoaded.Inc()
		e.syncCacheMetrics()
	}
	e.notifyAll()
	return res, err
}

// Refresh rewinds the cursor to the first page and reloads it. Entries merged
// from the stream stay in the cache; the reload only re-applies page one.
func (e *Engine) Refresh(ctx context.Context) (page.Result, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return page.Result{}, ErrClosed
	}

	e.pager.Reset()
	return e.LoadNext(ctx)
}

// Acknowledge confirms an alert with the upstream before mutating local state.
func (e *Engine) Acknowledge(ctx context.Context, id string) (bool, error) {
	ok, err := e.alerts.Acknowledge(ctx, id)
	if ok && err == nil {
		e.notifyAll()
	}
	return ok, err
}

// Dismiss hides an alert locally. A later re-emission brings it back.
func (e *Engine) Dismiss(id string) {
	e.alerts.Dismiss(id)
	e.notifyAll()
}

// SeedAlerts merges an initial alert list fetched over REST.
func (e *Engine) SeedAlerts(as []record.Alert) {
	e.alerts.AddMany(as)
	e.notifyAll()
}

// Status reports the feed connection health.
func (e *Engine) Status() feed.Status {
	return e.feed.Status()
}

// Quotes returns the cached latest quotes, oldest update first.
func (e *Engine) Quotes() []record.Quote {
	return e.quotes.All()
}

// Bars returns the cached bar history, oldest update first.
func (e *Engine) Bars() []record.Bar {
	return e.bars.All()
}

// Close marks the engine closed and detaches all subscriptions. The feed
// monitor is owned by the caller and is not touched here.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.subs = make(map[string]*Subscription)
}

func (e *Engine) notifyAll() {
	e.mu.RLock()
	subs := make([]*Subscription, 0, len(e.subs))
	for _, s := range e.subs {
		subs = append(subs, s)
	}
	e.mu.RUnlock()

	for _, s := range subs {
		if s.deliver() {
			e.metrics.NotificationsTotal.Inc()
		}
	}
}

func (e *Engine) syncCacheMetrics() {
	for name, st := range map[string]interface {
		Len() int
		Evictions() uint64
	}{
		"records": e.records,
		"quotes":  e.quotes,
		"bars":    e.bars,
	} {
		e.metrics.CacheSize.WithLabelValues(name).Set(float64(st.Len()))

		e.mu.Lock()
		seen := e.evictionsSeen[name]
		total := st.Evictions()
		e.evictionsSeen[name] = total
		e.mu.Unlock()

		if total > seen {
			e.metrics.CacheEvictions.WithLabelValues(name).Add(float64(total - seen))
		}
	}
}
