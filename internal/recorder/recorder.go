package recorder

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CheckEvent summarizes one tracker run.
type CheckEvent struct {
	RunID       string
	Symbol      string
	SessionDate string
	Outcome     string // tracker outcome or "source_error" / "invalid_input"
	Bars        int
	High        decimal.Decimal
	Low         decimal.Decimal
	Alerts      int
	Gaps        int
	Persisted   bool
	Error       string
	At          time.Time
}

// AlertRecord is one emitted HIGH/LOW alert and its delivery result.
type AlertRecord struct {
	RunID       string
	Symbol      string
	SessionDate string
	Kind        string // "HIGH" or "LOW"
	Value       decimal.Decimal
	BarTime     time.Time
	At          time.Time
	Delivered   bool
	Error       string
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordCheck(evt *CheckEvent) error
	RecordAlert(rec *AlertRecord) error
	Close() error
}

// Multi fans every record out to all recorders and joins their errors.
type Multi []Recorder

func (m Multi) RecordCheck(evt *CheckEvent) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordCheck(evt))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordAlert(rec *AlertRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordAlert(rec))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
