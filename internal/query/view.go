// Package query derives ordered, filtered views over the record cache without
// mutating it. View is a pure function: identical inputs produce element-wise
// equal outputs.
package query

import (
	"sort"
	"strings"

	"exec-feed-sync/internal/record"
)

// Field names a sortable record attribute.
type Field string

const (
	FieldID         Field = "id"
	FieldInstrument Field = "instrument"
	FieldAccount    Field = "account"
	FieldBroker     Field = "broker"
	FieldStatus     Field = "status"
	FieldSize       Field = "size"
	FieldPrice      Field = "price"
	FieldSlippage   Field = "slippage"
	FieldLastUpdate Field = "lastUpdate"
)

// Sort describes the user-facing order of a view.
type Sort struct {
	Field      Field
	Descending bool
}

// DefaultSort orders newest updates first.
func DefaultSort() Sort {
	return Sort{Field: FieldLastUpdate, Descending: true}
}

// View filters and orders records into a fresh slice. The input is never
// mutated. Ties always break by ascending ID so the order is total and stable;
// records with a nil sort value (unset slippage) sort last regardless of
// direction.
func View(records []record.Record, f Filter, s Sort) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sortRecords(out, s)
	return out
}

func sortRecords(rs []record.Record, s Sort) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]

		if s.Field == FieldSlippage {
			aNil, bNil := a.Slippage == nil, b.Slippage == nil
			if aNil || bNil {
				if aNil == bNil {
					return a.ID < b.ID
				}
				return bNil
			}
		}

		c := compareField(a, b, s.Field)
		if c == 0 {
			return a.ID < b.ID
		}
		if s.Descending {
			return c > 0
		}
		return c < 0
	})
}

func compareField(a, b record.Record, f Field) int {
	switch f {
	case FieldInstrument:
		return strings.Compare(a.Instrument, b.Instrument)
	case FieldAccount:
		return strings.Compare(a.Account, b.Account)
	case FieldBroker:
		return strings.Compare(a.Broker, b.Broker)
	case FieldStatus:
		return strings.Compare(a.Status, b.Status)
	case FieldSize:
		return a.Size.Cmp(b.Size)
	case FieldPrice:
		return a.Price.Cmp(b.Price)
	case FieldSlippage:
		return a.Slippage.Cmp(*b.Slippage)
	case FieldLastUpdate:
		if a.LastUpdate.Before(b.LastUpdate) {
			return -1
		}
		if a.LastUpdate.After(b.LastUpdate) {
			return 1
		}
		return 0
	case FieldID:
		return strings.Compare(a.ID, b.ID)
	default:
		return 0
	}
}

// ParseField maps a user-supplied name onto a sortable field, falling back to
// lastUpdate for anything unrecognised.
func ParseField(name string) Field {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "id":
		return FieldID
	case "instrument", "symbol":
		return FieldInstrument
	case "account":
		return FieldAccount
	case "broker":
		return FieldBroker
	case "status":
		return FieldStatus
	case "size", "qty", "quantity":
		return FieldSize
	case "price":
		return FieldPrice
	case "slippage":
		return FieldSlippage
	default:
		return FieldLastUpdate
	}
}
