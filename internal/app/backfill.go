package app

import (
	"context"
	"time"

	"exec-feed-sync/internal/query"
	"exec-feed-sync/internal/record"
	"exec-feed-sync/internal/upstream"
)

// backfill pulls execution history over REST, page by page, until the
// upstream is exhausted or maxPages is hit. Used by the offline commands so
// they never need a live websocket.
func (a *App) backfill(ctx context.Context, client *upstream.Client, f query.Filter, s query.Sort, maxPages int) ([]record.Record, error) {
	pageSize := a.Config.Upstream.PageSize

	var out []record.Record
	for page := 1; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		res, err := client.FetchExecutions(ctx, upstream.ExecutionQuery{
			Filter:   f,
			Sort:     s,
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return nil, err
		}

		out = append(out, res.Records...)
		if !res.HasNext {
			break
		}
	}

	a.Logger.Debug().Int("records", len(out)).Msg("backfill complete")
	return out, nil
}

func rangeFilter(from, to *time.Time) query.Filter {
	return query.Filter{From: from, To: to}
}
