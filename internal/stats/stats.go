// Package stats derives summary figures from a record view. Everything here
// is a pure function over the slice it is handed; aggregates are recomputed on
// every read rather than maintained as separate mutable state.
package stats

import (
	"github.com/shopspring/decimal"

	"exec-feed-sync/internal/record"
)

// Summary bundles the aggregates shown alongside a view.
type Summary struct {
	Total           int             `json:"total"`
	TotalVolume     decimal.Decimal `json:"totalVolume"`
	AverageSlippage decimal.Decimal `json:"averageSlippage"`
	CountByStatus   map[string]int  `json:"countByStatus"`
}

// Summarize computes all aggregates for a view in one pass over the slice.
func Summarize(records []record.Record) Summary {
	return Summary{
		Total:           len(records),
		TotalVolume:     TotalVolume(records),
		AverageSlippage: AverageSlippage(records),
		CountByStatus:   CountByStatus(records),
	}
}

// TotalVolume sums record sizes.
func TotalVolume(records []record.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Size)
	}
	return total
}

// AverageSlippage averages slippage across filled records that carry one.
// Returns zero on an empty contributing set.
func AverageSlippage(records []record.Record) decimal.Decimal {
	sum := decimal.Zero
	count := 0
	for _, r := range records {
		if r.Status != record.StatusFilled || r.Slippage == nil {
			continue
		}
		sum = sum.Add(*r.Slippage)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

// CountByStatus tallies records per status.
func CountByStatus(records []record.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Status]++
	}
	return counts
}
