package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"exec-feed-sync/internal/record"
)

// Message types pushed by the upstream feed.
const (
	TypeExecutionUpdate = "execution_update"
	TypeAlertNew        = "alert_new"
	TypeTick            = "tick"
	TypeBar             = "bar"
)

// ErrUnknownType marks a message whose type the engine does not recognise.
// Unknown types are skipped, not treated as failures, so the wire format can
// grow without breaking older consumers.
var ErrUnknownType = errors.New("feed: unknown message type")

// Message is the classified form of one push-channel frame. Exactly one of
// the payload pointers is set, matching Type.
type Message struct {
	Type   string
	Record *record.Record
	Alert  *record.Alert
	Quote  *record.Quote
	Bar    *record.Bar
}

type envelope struct {
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
	Alert  json.RawMessage `json:"alert"`

	// Inline tick/bar fields.
	Instrument string          `json:"instrument"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Timestamp  time.Time       `json:"timestamp"`
	Timeframe  string          `json:"timeframe"`
	OHLCV      json.RawMessage `json:"ohlcv"`
}

type ohlcv struct {
	OpenTime time.Time       `json:"openTime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// DecodeMessage parses a raw frame into a classified Message. A malformed
// frame or a payload missing its identity returns an error; the caller drops
// that single message and keeps the connection alive.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeExecutionUpdate:
		var rec record.Record
		if err := json.Unmarshal(env.Record, &rec); err != nil {
			return Message{}, fmt.Errorf("decode execution record: %w", err)
		}
		if rec.ID == "" {
			return Message{}, errors.New("execution record missing id")
		}
		if rec.LastUpdate.IsZero() {
			rec.LastUpdate = time.Now().UTC()
		}
		return Message{Type: env.Type, Record: &rec}, nil

	case TypeAlertNew:
		var alert record.Alert
		if err := json.Unmarshal(env.Alert, &alert); err != nil {
			return Message{}, fmt.Errorf("decode alert: %w", err)
		}
		if alert.ID == "" {
			return Message{}, errors.New("alert missing id")
		}
		if alert.CreatedAt.IsZero() {
			alert.CreatedAt = time.Now().UTC()
		}
		return Message{Type: env.Type, Alert: &alert}, nil

	case TypeTick:
		if env.Instrument == "" {
			return Message{}, errors.New("tick missing instrument")
		}
		quote := record.Quote{
			Instrument: env.Instrument,
			Bid:        env.Bid,
			Ask:        env.Ask,
			Timestamp:  env.Timestamp,
		}
		if quote.Timestamp.IsZero() {
			quote.Timestamp = time.Now().UTC()
		}
		return Message{Type: env.Type, Quote: &quote}, nil

	case TypeBar:
		if env.Instrument == "" {
			return Message{}, errors.New("bar missing instrument")
		}
		var candle ohlcv
		if err := json.Unmarshal(env.OHLCV, &candle); err != nil {
			return Message{}, fmt.Errorf("decode ohlcv: %w", err)
		}
		bar := record.Bar{
			Instrument: env.Instrument,
			Timeframe:  env.Timeframe,
			OpenTime:   candle.OpenTime,
			Open:       candle.Open,
			High:       candle.High,
			Low:        candle.Low,
			Close:      candle.Close,
			Volume:     candle.Volume,
		}
		return Message{Type: env.Type, Bar: &bar}, nil

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
