// Package archive keeps a copy of each session's raw bars on disk and,
// optionally, in S3.
package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"

	"ExtremaSentinel/internal/model"
)

// BarRecord is the flat Parquet row.
type BarRecord struct {
	Timestamp int64   `json:"t" parquet:"t"` // unix milliseconds
	Open      float64 `json:"o" parquet:"o"`
	High      float64 `json:"h" parquet:"h"`
	Low       float64 `json:"l" parquet:"l"`
	Close     float64 `json:"c" parquet:"c"`
	Volume    int64   `json:"v" parquet:"v"`
}

// Records converts bars to Parquet rows. Prices become float64 here only.
func Records(bars []model.Bar) []BarRecord {
	out := make([]BarRecord, len(bars))
	for i, b := range bars {
		out[i] = BarRecord{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume,
		}
	}
	return out
}

// Saver writes one file of bars.
type Saver interface {
	Save(bars []model.Bar, path string) error
	Extension() string
}

// NewSaver returns the Saver for format (csv, parquet, json), or nil if the
// format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// ParquetSaver stores bars as Parquet.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(bars []model.Bar, path string) error {
	return parquet.WriteFile(path, Records(bars))
}

// jsonBar keeps prices as exact decimal literals.
type jsonBar struct {
	Timestamp int64       `json:"t"`
	Open      json.Number `json:"o"`
	High      json.Number `json:"h"`
	Low       json.Number `json:"l"`
	Close     json.Number `json:"c"`
	Volume    int64       `json:"v"`
}

// JSONSaver stores bars as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(bars []model.Bar, path string) error {
	rows := make([]jsonBar, len(bars))
	for i, b := range bars {
		rows[i] = jsonBar{
			Timestamp: b.Time.UnixMilli(),
			Open:      json.Number(b.Open.String()),
			High:      json.Number(b.High.String()),
			Low:       json.Number(b.Low.String()),
			Close:     json.Number(b.Close.String()),
			Volume:    b.Volume,
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// CSVSaver stores bars as CSV with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(bars []model.Bar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format(time.RFC3339),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
