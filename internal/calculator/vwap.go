package calculator

import (
	"errors"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/model"
)

// VWAP computes the cumulative volume-weighted average price of bars using
// the typical price (H+L+C)/3.
func VWAP(bars []model.Bar) (decimal.Decimal, error) {
	if len(bars) == 0 {
		return decimal.Zero, ErrNoBars
	}
	var tpv decimal.Decimal
	var vol int64
	for _, b := range bars {
		tpv = tpv.Add(b.TypicalPrice().Mul(decimal.NewFromInt(b.Volume)))
		vol += b.Volume
	}
	if vol == 0 {
		return decimal.Zero, errors.New("zero total volume")
	}
	return tpv.Div(decimal.NewFromInt(vol)), nil
}

// RunningVWAP returns the cumulative VWAP after each bar. Entries before any
// volume has traded are zero.
func RunningVWAP(bars []model.Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	var tpv decimal.Decimal
	var vol int64
	for i, b := range bars {
		tpv = tpv.Add(b.TypicalPrice().Mul(decimal.NewFromInt(b.Volume)))
		vol += b.Volume
		if vol > 0 {
			out[i] = tpv.Div(decimal.NewFromInt(vol))
		}
	}
	return out
}
