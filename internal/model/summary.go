package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary condenses one session of intraday bars.
type DailySummary struct {
	Date     string
	Open     decimal.Decimal
	High     decimal.Decimal
	HighTime time.Time
	Low      decimal.Decimal
	LowTime  time.Time
	Close    decimal.Decimal
	Volume   int64
	VWAP     decimal.Decimal
	Bars     int
}

// SummaryReport is the multi-day overview plus today's VWAP reading.
type SummaryReport struct {
	Symbol      string
	Days        []DailySummary
	PeriodHigh  decimal.Decimal
	PeriodLow   decimal.Decimal
	AvgVolume   int64
	Today       *DailySummary
	LastPrice   decimal.Decimal
	GeneratedAt time.Time
}
