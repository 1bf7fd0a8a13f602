package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exec-feed-sync/internal/engine"
	"exec-feed-sync/internal/export"
	"exec-feed-sync/internal/feed"
	"exec-feed-sync/internal/metrics"
	"exec-feed-sync/internal/record"
	"exec-feed-sync/internal/upstream"
)

// Simulate drives the full engine from a synthetic feed: generated execution
// updates, ticks and alerts flow through the same message loop the live run
// uses, then the resulting view is printed and optionally exported.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Records <= 0 {
		return errors.New("records must be greater than zero")
	}

	fd := &syntheticFeed{ch: make(chan feed.Message, opts.Records+64)}
	m := metrics.New()
	eng := engine.New(engine.Options{
		Feed:       fd,
		Source:     staticSource{},
		Remote:     staticRemote{},
		PageSize:   a.Config.Upstream.PageSize,
		MaxRecords: a.Config.Cache.MaxRecords,
		MaxQuotes:  a.Config.Cache.MaxQuotes,
		MaxBars:    a.Config.Cache.MaxBars,
		MaxAlerts:  a.Config.Cache.MaxAlerts,
		Metrics:    m,
	}, a.Logger)
	defer eng.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go eng.Run(runCtx)

	generated := generateMessages(opts.Records)
	for _, msg := range generated {
		fd.ch <- msg
	}

	sub := eng.Subscribe(nil)
	if err := waitForRecords(ctx, sub, opts.Records); err != nil {
		return err
	}

	snap := sub.Snapshot()
	fmt.Fprintf(os.Stdout, "simulated %d executions, %d alerts, volume %s, avg slippage %s\n",
		snap.Stats.Total,
		len(snap.Alerts),
		snap.Stats.TotalVolume.String(),
		snap.Stats.AverageSlippage.StringFixed(5),
	)

	if opts.OutPath == "" && opts.Format == "" {
		return nil
	}
	return a.writeSnapshot(snap, opts)
}

func (a *App) writeSnapshot(snap engine.Snapshot, opts SimulateOptions) error {
	format := opts.Format
	if format == "" {
		format = a.Config.Export.Format
	}

	data, err := export.Encode(format, snap.Records)
	if err != nil {
		return err
	}

	path := opts.OutPath
	if path == "" {
		from, to := export.Range(snap.Records)
		path = export.Filename(format, from, to)
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing simulation export: %w", err)
	}

	fmt.Fprintf(os.Stdout, "wrote %d executions to %s\n", len(snap.Records), path)
	return nil
}

func waitForRecords(ctx context.Context, sub *engine.Subscription, want int) error {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		if len(sub.Snapshot().Records) >= want {
			return nil
		}
	}
	return errors.New("timed out waiting for simulated messages to apply")
}

var simInstruments = []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD", "BTCUSD"}

func generateMessages(n int) []feed.Message {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	statuses := []string{
		record.StatusOpen, record.StatusPartial, record.StatusFilled,
		record.StatusCancelled, record.StatusRejected,
	}

	msgs := make([]feed.Message, 0, n+n/10+len(simInstruments))
	now := time.Now().UTC()

	for _, instrument := range simInstruments {
		q := record.Quote{
			Instrument: instrument,
			Bid:        decimal.NewFromFloat(rng.Float64() * 100),
			Ask:        decimal.NewFromFloat(rng.Float64() * 100),
			Timestamp:  now,
		}
		msgs = append(msgs, feed.Message{Type: feed.TypeTick, Quote: &q})
	}

	for i := 0; i < n; i++ {
		instrument := simInstruments[rng.Intn(len(simInstruments))]
		direction := record.DirectionBuy
		if rng.Intn(2) == 1 {
			direction = record.DirectionSell
		}
		status := statuses[rng.Intn(len(statuses))]

		r := record.Record{
			ID:         uuid.NewString(),
			Instrument: instrument,
			Account:    fmt.Sprintf("acct-%d", rng.Intn(5)+1),
			Broker:     "sim",
			Direction:  direction,
			Status:     status,
			Size:       decimal.NewFromInt(int64(rng.Intn(100) + 1)),
			Price:      decimal.NewFromFloat(rng.Float64() * 100),
			LastUpdate: now.Add(-time.Duration(rng.Intn(3600)) * time.Second),
		}
		if status == record.StatusFilled {
			slip := decimal.NewFromFloat(rng.Float64() * 0.01)
			r.Slippage = &slip
		}
		msgs = append(msgs, feed.Message{Type: feed.TypeExecutionUpdate, Record: &r})

		if i%10 == 0 {
			alert := record.Alert{
				ID:         uuid.NewString(),
				Severity:   record.SeverityWarning,
				Message:    fmt.Sprintf("simulated slippage spike on %s", instrument),
				Instrument: instrument,
				CreatedAt:  now,
			}
			msgs = append(msgs, feed.Message{Type: feed.TypeAlertNew, Alert: &alert})
		}
	}

	return msgs
}

// syntheticFeed satisfies engine.Feed without a network connection.
type syntheticFeed struct {
	ch chan feed.Message
}

func (f *syntheticFeed) Messages() <-chan feed.Message { return f.ch }

func (f *syntheticFeed) Status() feed.Status {
	return feed.Status{State: feed.StateConnected}
}

func (f *syntheticFeed) OnStatusChange(func(feed.Status)) {}

type staticSource struct{}

func (staticSource) FetchExecutions(context.Context, upstream.ExecutionQuery) (upstream.PageResult, error) {
	return upstream.PageResult{}, nil
}

type staticRemote struct{}

func (staticRemote) AcknowledgeAlert(context.Context, string) error { return nil }

var _ engine.Feed = (*syntheticFeed)(nil)
