// Package export serializes a filtered view for download. The CSV field order
// is fixed so downstream spreadsheets and diff tooling stay stable.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"exec-feed-sync/internal/record"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatPNG  = "png"
)

// ErrUnsupportedFormat is returned for formats outside csv/json/png.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

var csvHeader = []string{
	"id", "instrument", "account", "broker", "direction",
	"status", "size", "price", "slippage", "last_update",
}

// Encode renders records in the requested format.
func Encode(format string, records []record.Record) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatCSV:
		err = WriteCSV(&buf, records)
	case FormatJSON:
		err = WriteJSON(&buf, records)
	case FormatPNG:
		err = WritePNG(&buf, records)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes records with the fixed header row.
func WriteCSV(w io.Writer, records []record.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		slippage := ""
		if r.Slippage != nil {
			slippage = r.Slippage.String()
		}
		row := []string{
			r.ID,
			r.Instrument,
			r.Account,
			r.Broker,
			r.Direction,
			r.Status,
			r.Size.String(),
			r.Price.String(),
			slippage,
			r.LastUpdate.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WritePNG renders a price-over-time chart of the view. At least two records
// are required to draw a series.
func WritePNG(w io.Writer, records []record.Record) error {
	if len(records) < 2 {
		return errors.New("export: need at least two records to render a chart")
	}

	ordered := make([]record.Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LastUpdate.Before(ordered[j].LastUpdate)
	})

	x := make([]time.Time, len(ordered))
	prices := make([]float64, len(ordered))
	sizes := make([]float64, len(ordered))
	for i, r := range ordered {
		x[i] = r.LastUpdate
		prices[i] = r.Price.InexactFloat64()
		sizes[i] = r.Size.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Size",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "Size",
				XValues: x,
				YValues: sizes,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// Filename names an export after its date range, e.g.
// executions_20260801-20260803.csv. Zero bounds fall back to the current day.
func Filename(format string, from, to time.Time) string {
	if from.IsZero() && to.IsZero() {
		now := time.Now().UTC()
		from, to = now, now
	} else if from.IsZero() {
		from = to
	} else if to.IsZero() {
		to = from
	}
	return fmt.Sprintf("executions_%s-%s.%s", from.UTC().Format("20060102"), to.UTC().Format("20060102"), format)
}

// Range returns the span of LastUpdate values in the view.
func Range(records []record.Record) (from, to time.Time) {
	for _, r := range records {
		if from.IsZero() || r.LastUpdate.Before(from) {
			from = r.LastUpdate
		}
		if to.IsZero() || r.LastUpdate.After(to) {
			to = r.LastUpdate
		}
	}
	return from, to
}
