package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"exec-feed-sync/internal/query"
	"exec-feed-sync/internal/record"
	"exec-feed-sync/internal/stats"
)

// Show prints recent executions as a table with an aggregate footer.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if a.Config.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url not configured")
	}

	client := a.newUpstream()

	f := query.Filter{}
	if opts.Account != "" {
		f.Accounts = []string{opts.Account}
	}
	if opts.Status != "" {
		f.Statuses = []string{opts.Status}
	}

	records, err := a.backfill(ctx, client, f, query.DefaultSort(), pagesFor(opts.Limit, a.Config.Upstream.PageSize))
	if err != nil {
		return err
	}
	if len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no executions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tID\tInstrument\tAccount\tDir\tStatus\tSize\tPrice\tSlippage")

	for _, r := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.LastUpdate.UTC().Format(time.RFC3339),
			r.ID,
			r.Instrument,
			r.Account,
			r.Direction,
			r.Status,
			r.Size.String(),
			formatDecimal(r.Price, 5),
			formatSlippage(r.Slippage),
		)
	}
	writer.Flush()

	summary := stats.Summarize(records)
	fmt.Fprintf(os.Stdout, "\n%d executions, volume %s, avg slippage %s\n",
		summary.Total,
		summary.TotalVolume.String(),
		formatDecimal(summary.AverageSlippage, 5),
	)
	for _, status := range []string{
		record.StatusOpen, record.StatusPartial, record.StatusFilled,
		record.StatusCancelled, record.StatusRejected,
	} {
		if n := summary.CountByStatus[status]; n > 0 {
			fmt.Fprintf(os.Stdout, "  %s: %d\n", status, n)
		}
	}

	return nil
}

func pagesFor(limit, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	pages := (limit + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func formatSlippage(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(5)
}
