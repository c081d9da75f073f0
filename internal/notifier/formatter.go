package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"ExtremaSentinel/internal/calculator"
	"ExtremaSentinel/internal/model"
)

// FormatAlert renders a new high/low event, e.g.
//
//	📈 PETRONET LNG NEW DAY HIGH
//	₹245.30
//	Time: 10:05 IST
func FormatAlert(name string, ev model.AlertEvent, loc *time.Location) string {
	icon, label := "📈", "NEW DAY HIGH"
	if ev.Kind == model.AlertLow {
		icon, label = "📉", "NEW DAY LOW"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s %s</b>\n", icon, html.EscapeString(name), label))
	b.WriteString(fmt.Sprintf("₹%s\n", ev.Value.StringFixed(2)))
	b.WriteString(fmt.Sprintf("Time: %s", ev.At.In(loc).Format("15:04 MST")))
	if !ev.BarTime.IsZero() {
		b.WriteString(fmt.Sprintf(" (bar %s)", ev.BarTime.In(loc).Format("15:04")))
	}
	return b.String()
}

// FormatDailySummary renders the multi-day table and today's VWAP reading.
func FormatDailySummary(name string, r *model.SummaryReport, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | last %d trading days (%s)\n\n",
		html.EscapeString(name), len(r.Days), r.GeneratedAt.In(loc).Format("MST")))

	if len(r.Days) == 0 {
		b.WriteString("No complete sessions in range.\n")
	} else {
		b.WriteString("<pre>")
		b.WriteString(fmt.Sprintf("%-10s %8s %8s %5s %8s %5s %8s %10s\n",
			"Date", "Open", "High", "@", "Low", "@", "Close", "Volume"))
		for _, d := range r.Days {
			b.WriteString(fmt.Sprintf("%-10s %8s %8s %5s %8s %5s %8s %10d\n",
				d.Date,
				d.Open.StringFixed(2),
				d.High.StringFixed(2), d.HighTime.In(loc).Format("15:04"),
				d.Low.StringFixed(2), d.LowTime.In(loc).Format("15:04"),
				d.Close.StringFixed(2),
				d.Volume))
		}
		b.WriteString("</pre>\n")
		b.WriteString(fmt.Sprintf("Period high: ₹%s | Period low: ₹%s\n",
			r.PeriodHigh.StringFixed(2), r.PeriodLow.StringFixed(2)))
		b.WriteString(fmt.Sprintf("Avg volume: %d\n", r.AvgVolume))
	}

	if r.Today != nil && !r.Today.VWAP.IsZero() {
		dev := calculator.VWAPDeviation(r.LastPrice, r.Today.VWAP)
		position := "above"
		if dev.IsNegative() {
			position = "below"
		}
		b.WriteString(fmt.Sprintf("\n💹 Today VWAP: ₹%s | Last: ₹%s (%s by %s)\n",
			r.Today.VWAP.StringFixed(2), r.LastPrice.StringFixed(2), position, dev.Abs().StringFixed(2)))
	}
	return b.String()
}

// FormatStatus formats the persisted extremum state for display.
func FormatStatus(name string, state *model.ExtremumState, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>%s state</b>\n\n", html.EscapeString(name)))
	if state == nil {
		b.WriteString("No session recorded yet.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Session: %s\n", state.SessionDate))
	b.WriteString(fmt.Sprintf("Day high: ₹%s\n", state.RunningHigh.StringFixed(2)))
	b.WriteString(fmt.Sprintf("Day low: ₹%s\n", state.RunningLow.StringFixed(2)))
	if !state.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Updated: %s\n", state.UpdatedAt.In(loc).Format("2006-01-02 15:04 MST")))
	}
	return b.String()
}
