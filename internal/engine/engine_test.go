package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-feed-sync/internal/alerts"
	"exec-feed-sync/internal/feed"
	"exec-feed-sync/internal/query"
	"exec-feed-sync/internal/record"
	"exec-feed-sync/internal/upstream"
)

type stubFeed struct {
	ch     chan feed.Message
	status feed.Status
	cbs    []func(feed.Status)
}

func newStubFeed() *stubFeed {
	return &stubFeed{
		ch:     make(chan feed.Message, 32),
		status: feed.Status{State: feed.StateConnected},
	}
}

func (f *stubFeed) Messages() <-chan feed.Message       { return f.ch }
func (f *stubFeed) Status() feed.Status                 { return f.status }
func (f *stubFeed) OnStatusChange(cb func(feed.Status)) { f.cbs = append(f.cbs, cb) }

type stubSource struct {
	pages map[int]upstream.PageResult
	calls []int
}

func (s *stubSource) FetchExecutions(ctx context.Context, q upstream.ExecutionQuery) (upstream.PageResult, error) {
	s.calls = append(s.calls, q.Page)
	return s.pages[q.Page], nil
}

type stubRemote struct {
	acked []string
}

func (s *stubRemote) AcknowledgeAlert(ctx context.Context, id string) error {
	s.acked = append(s.acked, id)
	return nil
}

func execRecord(id, account string, size int64) record.Record {
	return record.Record{
		ID:         id,
		Instrument: "EURUSD",
		Account:    account,
		Broker:     "ibrk",
		Direction:  record.DirectionBuy,
		Status:     record.StatusOpen,
		Size:       decimal.NewFromInt(size),
		Price:      decimal.NewFromFloat(1.0842),
		LastUpdate: time.Now(),
	}
}

func newTestEngine(t *testing.T, fd Feed, src *stubSource, remote *stubRemote) *Engine {
	t.Helper()
	if src == nil {
		src = &stubSource{}
	}
	if remote == nil {
		remote = &stubRemote{}
	}
	return New(Options{
		Feed:       fd,
		Source:     src,
		Remote:     remote,
		PageSize:   50,
		MaxRecords: 100,
		MaxQuotes:  100,
		MaxBars:    100,
		MaxAlerts:  100,
	}, zerolog.Nop())
}

func waitNotify(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestStreamUpdateReachesSnapshot(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	notified := make(chan struct{}, 8)
	sub := eng.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	require.NotNil(t, sub)

	r := execRecord("e1", "acct-1", 10)
	fd.ch <- feed.Message{Type: feed.TypeExecutionUpdate, Record: &r}

	waitNotify(t, notified)
	snap := sub.Snapshot()
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "e1", snap.Records[0].ID)
	assert.Equal(t, feed.StateConnected, snap.Connection.State)
	assert.False(t, snap.LastUpdate.IsZero())
}

func TestPauseGatesNotificationsNotCacheWrites(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)

	notified := make(chan struct{}, 8)
	sub := eng.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	sub.Pause()

	r := execRecord("e1", "acct-1", 10)
	eng.apply(feed.Message{Type: feed.TypeExecutionUpdate, Record: &r})

	select {
	case <-notified:
		t.Fatal("paused subscription was notified")
	default:
	}

	// The cache still applied the message while paused.
	require.Len(t, sub.Snapshot().Records, 1)

	sub.Resume()
	waitNotify(t, notified)
}

func TestSubscriptionsAreIsolated(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)

	a := eng.Subscribe(nil)
	b := eng.Subscribe(nil)
	a.UpdateFilter(query.Filter{Accounts: []string{"acct-1"}})
	b.UpdateFilter(query.Filter{Accounts: []string{"acct-2"}})

	for _, r := range []record.Record{
		execRecord("e1", "acct-1", 10),
		execRecord("e2", "acct-2", 20),
		execRecord("e3", "acct-1", 30),
	} {
		r := r
		eng.apply(feed.Message{Type: feed.TypeExecutionUpdate, Record: &r})
	}

	snapA := a.Snapshot()
	require.Len(t, snapA.Records, 2)
	for _, r := range snapA.Records {
		assert.Equal(t, "acct-1", r.Account)
	}

	snapB := b.Snapshot()
	require.Len(t, snapB.Records, 1)
	assert.Equal(t, "e2", snapB.Records[0].ID)

	// Changing one subscription's sort must not leak into the other.
	a.UpdateSort(query.Sort{Field: query.FieldSize, Descending: true})
	snapA = a.Snapshot()
	require.Len(t, snapA.Records, 2)
	assert.Equal(t, "e3", snapA.Records[0].ID)
	assert.Equal(t, "e2", b.Snapshot().Records[0].ID)
}

func TestLoadNextMergesPage(t *testing.T) {
	fd := newStubFeed()
	src := &stubSource{pages: map[int]upstream.PageResult{
		1: {Records: []record.Record{execRecord("e1", "acct-1", 10), execRecord("e2", "acct-1", 20)}, HasNext: true},
	}}
	eng := newTestEngine(t, fd, src, nil)
	sub := eng.Subscribe(nil)

	res, err := eng.LoadNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Merged)
	assert.True(t, res.HasMore)

	snap := sub.Snapshot()
	assert.Len(t, snap.Records, 2)
	assert.True(t, snap.HasMore)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Err)
}

func TestRefreshKeepsStreamMergedEntries(t *testing.T) {
	fd := newStubFeed()
	src := &stubSource{pages: map[int]upstream.PageResult{
		1: {Records: []record.Record{execRecord("e1", "acct-1", 10)}, HasNext: true},
		2: {Records: []record.Record{execRecord("e2", "acct-1", 20)}, HasNext: false},
	}}
	eng := newTestEngine(t, fd, src, nil)
	sub := eng.Subscribe(nil)

	_, err := eng.LoadNext(context.Background())
	require.NoError(t, err)
	_, err = eng.LoadNext(context.Background())
	require.NoError(t, err)

	streamed := execRecord("e9", "acct-1", 90)
	eng.apply(feed.Message{Type: feed.TypeExecutionUpdate, Record: &streamed})

	res, err := eng.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, []int{1, 2, 1}, src.calls)

	ids := make([]string, 0, 3)
	for _, r := range sub.Snapshot().Records {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"e1", "e2", "e9"}, ids)
}

func TestAlertFlowThroughEngine(t *testing.T) {
	fd := newStubFeed()
	remote := &stubRemote{}
	eng := newTestEngine(t, fd, nil, remote)
	sub := eng.Subscribe(nil)

	a := record.Alert{ID: "a1", Severity: record.SeverityWarning, Message: "slippage spike", CreatedAt: time.Now()}
	eng.apply(feed.Message{Type: feed.TypeAlertNew, Alert: &a})

	require.Len(t, sub.Snapshot().Alerts, 1)

	ok, err := eng.Acknowledge(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a1"}, remote.acked)
	assert.True(t, sub.Snapshot().Alerts[0].Acknowledged)

	eng.Dismiss("a1")
	assert.Empty(t, sub.Snapshot().Alerts)

	// Re-emission reverses the local dismiss.
	fresh := record.Alert{ID: "a1", Severity: record.SeverityCritical, Message: "slippage spike", CreatedAt: time.Now()}
	eng.apply(feed.Message{Type: feed.TypeAlertNew, Alert: &fresh})
	require.Len(t, sub.Snapshot().Alerts, 1)

	acked := true
	sub.UpdateAlertFilter(alerts.ListFilter{Acknowledged: &acked})
	assert.Empty(t, sub.Snapshot().Alerts)
}

func TestFeedConfigTruncatesView(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)
	sub := eng.Subscribe(nil)
	sub.UpdateFeedConfig(FeedConfig{MaxItems: 2})

	for i, id := range []string{"e1", "e2", "e3"} {
		r := execRecord(id, "acct-1", int64(i+1))
		eng.apply(feed.Message{Type: feed.TypeExecutionUpdate, Record: &r})
	}

	snap := sub.Snapshot()
	assert.Len(t, snap.Records, 2)
	// Stats cover the truncated view, matching what the consumer renders.
	assert.Equal(t, 2, snap.Stats.Total)
}

func TestFeedConfigRefreshIntervalOverride(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)

	def := 30 * time.Second
	a := eng.Subscribe(nil)
	b := eng.Subscribe(nil)

	assert.Equal(t, def, a.RefreshInterval(def), "no override inherits the default")

	a.UpdateFeedConfig(FeedConfig{RefreshSeconds: 5})
	assert.Equal(t, 5*time.Second, a.RefreshInterval(def))
	assert.Equal(t, def, b.RefreshInterval(def), "override is private to the subscription")

	a.UpdateFeedConfig(FeedConfig{RefreshSeconds: -1})
	assert.Equal(t, def, a.RefreshInterval(def), "non-positive override falls back")
}

func TestTickAndBarMessages(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)

	q := record.Quote{Instrument: "EURUSD", Bid: decimal.NewFromFloat(1.08), Ask: decimal.NewFromFloat(1.081), Timestamp: time.Now()}
	eng.apply(feed.Message{Type: feed.TypeTick, Quote: &q})
	q2 := record.Quote{Instrument: "EURUSD", Bid: decimal.NewFromFloat(1.09), Ask: decimal.NewFromFloat(1.091), Timestamp: time.Now()}
	eng.apply(feed.Message{Type: feed.TypeTick, Quote: &q2})

	quotes := eng.Quotes()
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Bid.Equal(decimal.NewFromFloat(1.09)))

	b := record.Bar{Instrument: "EURUSD", Timeframe: "1m", OpenTime: time.Now()}
	eng.apply(feed.Message{Type: feed.TypeBar, Bar: &b})
	assert.Len(t, eng.Bars(), 1)
}

func TestExportFilteredView(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)
	sub := eng.Subscribe(nil)
	sub.UpdateFilter(query.Filter{Accounts: []string{"acct-1"}})

	for _, r := range []record.Record{
		execRecord("e1", "acct-1", 10),
		execRecord("e2", "acct-2", 20),
	} {
		r := r
		eng.apply(feed.Message{Type: feed.TypeExecutionUpdate, Record: &r})
	}

	data, name, err := sub.Export("csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "executions_"))
	assert.True(t, strings.HasSuffix(name, ".csv"))

	body := string(data)
	assert.Contains(t, body, "e1")
	assert.NotContains(t, body, "e2")
}

func TestSubscribeAfterClose(t *testing.T) {
	fd := newStubFeed()
	eng := newTestEngine(t, fd, nil, nil)
	eng.Close()

	assert.Nil(t, eng.Subscribe(nil))

	_, err := eng.LoadNext(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = eng.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
