package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionDateLayout is the ISO layout used for session dates everywhere,
// including the persisted state.
const SessionDateLayout = "2006-01-02"

// Bar represents a single intraday OHLCV sample.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// SessionDate returns the exchange-local calendar date of the bar.
func (b Bar) SessionDate(loc *time.Location) string {
	return SessionDateOf(b.Time, loc)
}

// TypicalPrice returns (high + low + close) / 3.
func (b Bar) TypicalPrice() decimal.Decimal {
	return b.High.Add(b.Low).Add(b.Close).Div(decimal.NewFromInt(3))
}

// SessionDateOf formats t as a session date in loc.
func SessionDateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(SessionDateLayout)
}
