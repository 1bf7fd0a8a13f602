package query

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"exec-feed-sync/internal/record"
)

// Filter is a conjunction of optional predicates. The zero value matches
// every record. Numeric and time ranges are inclusive on both bounds.
type Filter struct {
	Accounts    []string
	Instruments []string
	Statuses    []string
	Brokers     []string
	Directions  []string

	MinSize     *decimal.Decimal
	MaxSize     *decimal.Decimal
	MinSlippage *decimal.Decimal
	MaxSlippage *decimal.Decimal

	From *time.Time
	To   *time.Time

	// Search matches case-insensitively against id, instrument, account,
	// and broker.
	Search string
}

// Matches reports whether r passes every configured predicate. A predicate
// left empty always passes.
func (f Filter) Matches(r record.Record) bool {
	if !memberOf(f.Accounts, r.Account) {
		return false
	}
	if !memberOf(f.Instruments, r.Instrument) {
		return false
	}
	if !memberOf(f.Statuses, r.Status) {
		return false
	}
	if !memberOf(f.Brokers, r.Broker) {
		return false
	}
	if !memberOf(f.Directions, r.Direction) {
		return false
	}

	if f.MinSize != nil && r.Size.LessThan(*f.MinSize) {
		return false
	}
	if f.MaxSize != nil && r.Size.GreaterThan(*f.MaxSize) {
		return false
	}

	if f.MinSlippage != nil && (r.Slippage == nil || r.Slippage.LessThan(*f.MinSlippage)) {
		return false
	}
	if f.MaxSlippage != nil && (r.Slippage == nil || r.Slippage.GreaterThan(*f.MaxSlippage)) {
		return false
	}

	if f.From != nil && r.LastUpdate.Before(*f.From) {
		return false
	}
	if f.To != nil && r.LastUpdate.After(*f.To) {
		return false
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(r.ID + " " + r.Instrument + " " + r.Account + " " + r.Broker)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}

	return true
}

func memberOf(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
