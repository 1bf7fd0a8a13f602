package record

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution directions.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// Execution statuses. Filled is the only terminal state that carries slippage.
const (
	StatusOpen      = "open"
	StatusPartial   = "partial"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

// Record is a single trade execution on the tape. Identity is the ID; a newer
// message with the same ID replaces the stored value wholesale.
type Record struct {
	ID         string           `json:"id"`
	Instrument string           `json:"instrument"`
	Account    string           `json:"account"`
	Broker     string           `json:"broker"`
	Direction  string           `json:"direction"`
	Status     string           `json:"status"`
	Size       decimal.Decimal  `json:"size"`
	Price      decimal.Decimal  `json:"price"`
	Slippage   *decimal.Decimal `json:"slippage,omitempty"`
	LastUpdate time.Time        `json:"lastUpdate"`
}

// Key implements cache.Entry.
func (r Record) Key() string { return r.ID }

// Quote is the latest bid/ask for an instrument. Upserting by instrument keeps
// exactly one live quote per symbol.
type Quote struct {
	Instrument string          `json:"instrument"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Key implements cache.Entry.
func (q Quote) Key() string { return q.Instrument }

// Bar is one OHLCV candle for an instrument and timeframe.
type Bar struct {
	Instrument string          `json:"instrument"`
	Timeframe  string          `json:"timeframe"`
	OpenTime   time.Time       `json:"openTime"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
}

// Key implements cache.Entry. A re-delivered candle for the same open time
// replaces the stored one.
func (b Bar) Key() string {
	return b.Instrument + "|" + b.Timeframe + "|" + b.OpenTime.UTC().Format(time.RFC3339)
}
