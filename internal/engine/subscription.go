package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"exec-feed-sync/internal/alerts"
	"exec-feed-sync/internal/export"
	"exec-feed-sync/internal/feed"
	"exec-feed-sync/internal/query"
	"exec-feed-sync/internal/record"
	"exec-feed-sync/internal/stats"
)

// FeedConfig tunes one subscriber's view of the shared cache. MaxItems
// truncates the rendered view only; cache capacity is set at engine
// construction. RefreshSeconds overrides the process-wide refresh cadence
// for this subscriber; zero means inherit the default.
type FeedConfig struct {
	MaxItems       int `json:"maxItems"`
	RefreshSeconds int `json:"refreshIntervalSeconds"`
}

// Snapshot is one consistent read of everything a dashboard panel renders.
type Snapshot struct {
	Records    []record.Record `json:"records"`
	Alerts     []record.Alert  `json:"alerts"`
	Stats      stats.Summary   `json:"stats"`
	Connection feed.Status     `json:"connection"`
	Loading    bool            `json:"loading"`
	HasMore    bool            `json:"hasMore"`
	Err        string          `json:"error,omitempty"`
	LastUpdate time.Time       `json:"lastUpdate"`
}

// Subscription is one consumer's handle on the engine. Filter, sort and feed
// config are private to the subscription; the underlying caches are shared.
type Subscription struct {
	id  string
	eng *Engine

	mu          sync.Mutex
	filter      query.Filter
	sort        query.Sort
	feedCfg     FeedConfig
	alertFilter alerts.ListFilter
	notify      func()
	paused      bool
}

// Subscribe registers a consumer. notify is invoked (possibly concurrently
// with other subscribers) whenever shared state changed; the consumer reacts
// by pulling Snapshot. A nil notify subscription is poll-only.
func (e *Engine) Subscribe(notify func()) *Subscription {
	s := &Subscription{
		id:     uuid.NewString(),
		eng:    e,
		sort:   query.DefaultSort(),
		notify: notify,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.subs[s.id] = s
	return s
}

// ID identifies the subscription.
func (s *Subscription) ID() string { return s.id }

// Snapshot evaluates this subscription's view of the shared caches.
func (s *Subscription) Snapshot() Snapshot {
	s.mu.Lock()
	filter, sort, cfg, alertFilter := s.filter, s.sort, s.feedCfg, s.alertFilter
	s.mu.Unlock()

	view := query.View(s.eng.records.All(), filter, sort)
	if cfg.MaxItems > 0 && len(view) > cfg.MaxItems {
		view = view[:cfg.MaxItems]
	}

	e := s.eng
	e.mu.RLock()
	loading, lastErr, lastUpdate := e.loading, e.lastErr, e.lastUpdate
	e.mu.RUnlock()

	return Snapshot{
		Records:    view,
		Alerts:     e.alerts.List(alertFilter),
		Stats:      stats.Summarize(view),
		Connection: e.feed.Status(),
		Loading:    loading,
		HasMore:    e.pager.HasMore(),
		Err:        lastErr,
		LastUpdate: lastUpdate,
	}
}

// UpdateFilter swaps the active filter. Synchronous, never touches the
// network; the next Snapshot reflects it.
func (s *Subscription) UpdateFilter(f query.Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// UpdateSort swaps the active sort descriptor.
func (s *Subscription) UpdateSort(sort query.Sort) {
	s.mu.Lock()
	s.sort = sort
	s.mu.Unlock()
}

// UpdateFeedConfig swaps the view tuning.
func (s *Subscription) UpdateFeedConfig(cfg FeedConfig) {
	s.mu.Lock()
	s.feedCfg = cfg
	s.mu.Unlock()
}

// RefreshInterval returns this subscriber's refresh cadence, falling back
// to def when the feed config carries no override.
func (s *Subscription) RefreshInterval(def time.Duration) time.Duration {
	s.mu.Lock()
	secs := s.feedCfg.RefreshSeconds
	s.mu.Unlock()

	if secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// UpdateAlertFilter swaps the alert list filter.
func (s *Subscription) UpdateAlertFilter(f alerts.ListFilter) {
	s.mu.Lock()
	s.alertFilter = f
	s.mu.Unlock()
}

// Pause suppresses notifications. The caches keep applying stream messages;
// the subscriber just stops being told about them.
func (s *Subscription) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume re-enables notifications and fires one immediately so the consumer
// catches up on everything applied while paused.
func (s *Subscription) Resume() {
	s.mu.Lock()
	s.paused = false
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Export serializes the subscription's current filtered view. The returned
// filename embeds the view's date range.
func (s *Subscription) Export(format string) ([]byte, string, error) {
	snap := s.Snapshot()

	data, err := export.Encode(format, snap.Records)
	if err != nil {
		return nil, "", err
	}

	from, to := export.Range(snap.Records)
	return data, export.Filename(format, from, to), nil
}

// Close detaches the subscription from the engine.
func (s *Subscription) Close() {
	s.eng.mu.Lock()
	delete(s.eng.subs, s.id)
	s.eng.mu.Unlock()
}

func (s *Subscription) deliver() bool {
	s.mu.Lock()
	notify, paused := s.notify, s.paused
	s.mu.Unlock()

	if paused || notify == nil {
		return false
	}
	notify()
	return true
}
