package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/model"
)

// GroupBySession splits bars by exchange-local calendar date. Dates are
// returned in ascending order and bars inside each group are sorted by time.
func GroupBySession(bars []model.Bar, loc *time.Location) ([]string, map[string][]model.Bar) {
	groups := make(map[string][]model.Bar)
	for _, b := range bars {
		d := b.SessionDate(loc)
		groups[d] = append(groups[d], b)
	}
	dates := make([]string, 0, len(groups))
	for d, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Time.Before(g[j].Time) })
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, groups
}

// Summarize condenses one session's bars. Bars must be sorted by time.
func Summarize(date string, bars []model.Bar) (model.DailySummary, error) {
	high, low, err := SessionRange(bars)
	if err != nil {
		return model.DailySummary{}, err
	}
	s := model.DailySummary{
		Date:     date,
		Open:     bars[0].Open,
		High:     high.Price,
		HighTime: high.Time,
		Low:      low.Price,
		LowTime:  low.Time,
		Close:    bars[len(bars)-1].Close,
		Bars:     len(bars),
	}
	for _, b := range bars {
		s.Volume += b.Volume
	}
	if vwap, err := VWAP(bars); err == nil {
		s.VWAP = vwap
	}
	return s, nil
}

// DailySummaries summarizes each session, skipping sessions with fewer than
// minBars bars, and keeps only the most recent lastN (0 keeps all).
func DailySummaries(bars []model.Bar, loc *time.Location, minBars, lastN int) []model.DailySummary {
	dates, groups := GroupBySession(bars, loc)
	out := make([]model.DailySummary, 0, len(dates))
	for _, d := range dates {
		g := groups[d]
		if len(g) < minBars {
			continue
		}
		s, err := Summarize(d, g)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	if lastN > 0 && len(out) > lastN {
		out = out[len(out)-lastN:]
	}
	return out
}

// BuildSummaryReport assembles the multi-day overview. Today's row is taken
// from the raw bars so that a short session still reports its VWAP.
func BuildSummaryReport(symbol string, bars []model.Bar, loc *time.Location, minBars, lastN int, now time.Time) *model.SummaryReport {
	r := &model.SummaryReport{
		Symbol:      symbol,
		Days:        DailySummaries(bars, loc, minBars, lastN),
		GeneratedAt: now,
	}
	if len(r.Days) > 0 {
		r.PeriodHigh = r.Days[0].High
		r.PeriodLow = r.Days[0].Low
		var vol int64
		for _, d := range r.Days {
			if d.High.GreaterThan(r.PeriodHigh) {
				r.PeriodHigh = d.High
			}
			if d.Low.LessThan(r.PeriodLow) {
				r.PeriodLow = d.Low
			}
			vol += d.Volume
		}
		r.AvgVolume = vol / int64(len(r.Days))
	}

	_, groups := GroupBySession(bars, loc)
	today := model.SessionDateOf(now, loc)
	if g := groups[today]; len(g) > 0 {
		if s, err := Summarize(today, g); err == nil {
			r.Today = &s
			r.LastPrice = g[len(g)-1].Close
		}
	}
	return r
}

// VWAPDeviation returns last - vwap, rounded to 2 places.
func VWAPDeviation(last, vwap decimal.Decimal) decimal.Decimal {
	return last.Sub(vwap).Round(2)
}
