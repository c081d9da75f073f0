package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/collector"
	"ExtremaSentinel/internal/model"
	"ExtremaSentinel/internal/monitor"
	"ExtremaSentinel/internal/notifier"
	"ExtremaSentinel/internal/store"
	"ExtremaSentinel/internal/tracker"
)

var (
	ist = time.FixedZone("IST", 5*3600+1800)
	now = time.Date(2024, 1, 10, 11, 0, 0, 0, ist)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sessionBars() []model.Bar {
	start := time.Date(2024, 1, 10, 9, 15, 0, 0, ist)
	return []model.Bar{
		{Time: start, Open: d("10"), High: d("11"), Low: d("9.5"), Close: d("10.5"), Volume: 100},
		{Time: start.Add(5 * time.Minute), Open: d("10.5"), High: d("11.5"), Low: d("10"), Close: d("11"), Volume: 100},
		{Time: start.Add(10 * time.Minute), Open: d("11"), High: d("12"), Low: d("10.5"), Close: d("11.5"), Volume: 100},
	}
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Get(context.Context, string) (*model.ExtremumState, error) {
	return nil, errors.New("disk I/O error")
}

// conflictingStore lets another writer land between Get and CompareAndSwap.
type conflictingStore struct{ *store.MemoryStore }

func (s conflictingStore) Get(ctx context.Context, key string) (*model.ExtremumState, error) {
	st, err := s.MemoryStore.Get(ctx, key)
	if err != nil || st == nil {
		return st, err
	}
	other := st.Clone()
	other.RunningHigh = d("50")
	s.MemoryStore.Put(ctx, key, other)
	return st, nil
}

func newApp(t *testing.T, fetch *collector.MockFetcher, st store.Store) *components {
	t.Helper()
	clock := func() time.Time { return now }
	col := collector.NewCollector(fetch, "PETRONET.NS", 5*time.Minute, 24*time.Hour, ist)
	col.Clock = clock
	return &components{monitor: monitor.New(monitor.Deps{
		Collector: col,
		Tracker:   tracker.New(tracker.Config{Location: ist, Interval: 5 * time.Minute, Clock: clock}),
		Store:     st,
		Sink:      notifier.LogSink{},
	}, monitor.Options{Symbol: "PETRONET.NS", Location: ist, Clock: clock})}
}

func TestRunOnceExitCodes(t *testing.T) {
	malformed := sessionBars()
	malformed[1].Open = d("12") // above the bar's high

	seeded := func(s store.Store) store.Store {
		prior := &model.ExtremumState{SessionDate: "2024-01-10", RunningHigh: d("11"), RunningLow: d("9")}
		if err := s.Put(context.Background(), "PETRONET.NS", prior); err != nil {
			t.Fatal(err)
		}
		return s
	}

	tests := []struct {
		name  string
		fetch *collector.MockFetcher
		store func() store.Store
		want  int
	}{
		{"completed", &collector.MockFetcher{Bars: sessionBars()},
			func() store.Store { return store.NewMemoryStore() }, exitOK},
		{"no bars yet", &collector.MockFetcher{Bars: []model.Bar{}},
			func() store.Store { return store.NewMemoryStore() }, exitOK},
		{"source unavailable", &collector.MockFetcher{Err: fmt.Errorf("%w: timeout", collector.ErrSourceUnavailable)},
			func() store.Store { return store.NewMemoryStore() }, exitOK},
		{"malformed provider bar", &collector.MockFetcher{Bars: malformed},
			func() store.Store { return store.NewMemoryStore() }, exitOK},
		{"state conflict", &collector.MockFetcher{Bars: sessionBars()},
			func() store.Store { return seeded(conflictingStore{store.NewMemoryStore()}) }, exitOK},
		{"store failure", &collector.MockFetcher{Bars: sessionBars()},
			func() store.Store { return brokenStore{store.NewMemoryStore()} }, exitRuntimeErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(t, tt.fetch, tt.store())
			if got := runOnce(context.Background(), app); got != tt.want {
				t.Errorf("runOnce() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunOnceKeepsStateOnMalformedBar(t *testing.T) {
	bars := sessionBars()
	bars[2].Open = d("13")
	st := store.NewMemoryStore()
	prior := &model.ExtremumState{SessionDate: "2024-01-10", RunningHigh: d("11"), RunningLow: d("9")}
	st.Put(context.Background(), "PETRONET.NS", prior)

	if got := runOnce(context.Background(), newApp(t, &collector.MockFetcher{Bars: bars}, st)); got != exitOK {
		t.Fatalf("runOnce() = %d", got)
	}
	got, _ := st.Get(context.Background(), "PETRONET.NS")
	if !got.Equal(prior) {
		t.Errorf("state changed after rejected input: %+v", got)
	}
}
