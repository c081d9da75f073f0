package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExtremumState is the persisted running high/low of one session.
type ExtremumState struct {
	SessionDate string          `json:"session_date"`
	RunningHigh decimal.Decimal `json:"running_high"`
	RunningLow  decimal.Decimal `json:"running_low"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Equal reports whether both states describe the same session extrema.
// UpdatedAt is ignored.
func (s *ExtremumState) Equal(o *ExtremumState) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.SessionDate == o.SessionDate &&
		s.RunningHigh.Equal(o.RunningHigh) &&
		s.RunningLow.Equal(o.RunningLow)
}

// Clone returns a copy of s, or nil.
func (s *ExtremumState) Clone() *ExtremumState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// AlertKind distinguishes a new session high from a new session low.
type AlertKind string

const (
	AlertHigh AlertKind = "HIGH"
	AlertLow  AlertKind = "LOW"
)

// AlertEvent is produced by the tracker and handed to the notification sink.
type AlertEvent struct {
	Kind    AlertKind
	Value   decimal.Decimal
	At      time.Time // when the check observed it
	BarTime time.Time // exchange-local time of the bar that set the extremum
}
