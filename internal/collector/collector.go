package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price decimal.Decimal
	Bars  []model.Bar
	Err   error
	Clock func() time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, _ string, interval, lookback time.Duration) ([]model.Bar, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Bars != nil {
		return m.Bars, nil
	}
	now := time.Now
	if m.Clock != nil {
		now = m.Clock
	}
	return generateMockBars(m.Price, now(), interval, lookback), nil
}

// generateMockBars walks a small zig-zag backwards from now.
func generateMockBars(base decimal.Decimal, now time.Time, interval, lookback time.Duration) []model.Bar {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if base.IsZero() {
		base = decimal.NewFromInt(100)
	}
	count := int(lookback / interval)
	if count < 1 {
		count = 1
	}
	if count > 500 {
		count = 500
	}
	step := base.Div(decimal.NewFromInt(1000))
	half := decimal.NewFromInt(2)
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := base.Add(step.Mul(decimal.NewFromInt(int64(i%7 - 3))))
		bars[i] = model.Bar{
			Time:   now.Add(-time.Duration(count-i) * interval).UTC(),
			Open:   p.Sub(step.Div(half)),
			High:   p.Add(step),
			Low:    p.Sub(step),
			Close:  p,
			Volume: 1000,
		}
	}
	return bars
}

// Collector turns raw fetcher output into exchange-local, ordered bars.
type Collector struct {
	Fetcher  Fetcher
	Symbol   string
	Interval time.Duration
	Lookback time.Duration
	Location *time.Location
	Clock    func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, symbol string, interval, lookback time.Duration, loc *time.Location) *Collector {
	if loc == nil {
		loc = time.UTC
	}
	return &Collector{
		Fetcher:  fetcher,
		Symbol:   symbol,
		Interval: interval,
		Lookback: lookback,
		Location: loc,
		Clock:    time.Now,
	}
}

// Session fetches the configured lookback and keeps only bars of today's
// exchange session. An empty slice with nil error means no data yet.
func (c *Collector) Session(ctx context.Context) ([]model.Bar, string, error) {
	today := model.SessionDateOf(c.Clock(), c.Location)
	bars, err := c.History(ctx, c.Interval, c.Lookback)
	if err != nil {
		return nil, today, err
	}
	session := FilterSession(bars, today, c.Location)
	if dropped := len(bars) - len(session); dropped > 0 {
		logger.GetLogger().WithComponent("collector").WithFields(logger.Fields{
			"symbol":  c.Symbol,
			"session": today,
			"dropped": dropped,
		}).Debug("dropped bars outside today's session")
	}
	return session, today, nil
}

// History fetches bars for an arbitrary window, normalized but unfiltered.
func (c *Collector) History(ctx context.Context, interval, lookback time.Duration) ([]model.Bar, error) {
	bars, err := c.Fetcher.FetchBars(ctx, c.Symbol, interval, lookback)
	if err != nil {
		return nil, fmt.Errorf("fetch %s bars from %s: %w", c.Symbol, c.Fetcher.Name(), err)
	}
	return Normalize(bars, c.Location), nil
}

// Normalize converts bar times to loc, sorts them ascending and drops exact
// duplicate timestamps, keeping the last one seen (the freshest revision).
func Normalize(bars []model.Bar, loc *time.Location) []model.Bar {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]model.Bar, len(bars))
	for i, b := range bars {
		b.Time = b.Time.In(loc)
		out[i] = b
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(b.Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

// FilterSession keeps bars whose exchange-local date equals date.
func FilterSession(bars []model.Bar, date string, loc *time.Location) []model.Bar {
	var out []model.Bar
	for _, b := range bars {
		if b.SessionDate(loc) == date {
			out = append(out, b)
		}
	}
	return out
}
