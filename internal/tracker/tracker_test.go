package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/model"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func clockAt(t time.Time) func() time.Time { return func() time.Time { return t } }

// session builds 5-minute bars from (high, low) pairs starting at 09:15 IST on
// 2024-01-10.
func session(pairs ...[2]string) []model.Bar {
	t0 := time.Date(2024, 1, 10, 9, 15, 0, 0, ist)
	bars := make([]model.Bar, len(pairs))
	for i, p := range pairs {
		h, l := d(p[0]), d(p[1])
		bars[i] = model.Bar{
			Time:   t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:   l,
			High:   h,
			Low:    l,
			Close:  h,
			Volume: 1000,
		}
	}
	return bars
}

func newTracker(mode Mode, first FirstObservation) *Tracker {
	return New(Config{
		Mode:             mode,
		FirstObservation: first,
		MinBars:          3,
		Location:         ist,
		Interval:         5 * time.Minute,
		Clock:            clockAt(time.Date(2024, 1, 10, 11, 0, 0, 0, ist)),
	})
}

func prior() *model.ExtremumState {
	return &model.ExtremumState{SessionDate: "2024-01-10", RunningHigh: d("100.0"), RunningLow: d("95.0")}
}

func TestCheck_NewHigh(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	bars := session([2]string{"99", "96"}, [2]string{"101.0", "97"}, [2]string{"100", "96"})

	res, err := tr.Check(bars, prior())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(res.Events))
	}
	ev := res.Events[0]
	if ev.Kind != model.AlertHigh || !ev.Value.Equal(d("101.0")) {
		t.Errorf("event = %s %s, want HIGH 101.0", ev.Kind, ev.Value)
	}
	if !ev.BarTime.Equal(bars[1].Time) {
		t.Errorf("bar time = %s, want %s", ev.BarTime, bars[1].Time)
	}
	if !res.State.RunningHigh.Equal(d("101.0")) || !res.State.RunningLow.Equal(d("95.0")) {
		t.Errorf("state = %s/%s", res.State.RunningHigh, res.State.RunningLow)
	}
}

func TestCheck_WithinRangeNoEvents(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	bars := session([2]string{"99", "96"}, [2]string{"100.0", "95.0"}, [2]string{"98", "97"})

	res, err := tr.Check(bars, prior())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 0 {
		t.Fatalf("expected no events, got %v", res.Events)
	}
	if !res.State.Equal(prior()) {
		t.Errorf("state changed: %+v", res.State)
	}
	if res.Changed(prior()) {
		t.Error("Changed() should be false")
	}
}

func TestCheck_SilentInitialization(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	bars := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})

	res, err := tr.Check(bars, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 0 {
		t.Fatalf("silent init must not alert, got %v", res.Events)
	}
	if res.State.SessionDate != "2024-01-10" || !res.State.RunningHigh.Equal(d("101")) || !res.State.RunningLow.Equal(d("94")) {
		t.Errorf("state = %+v", res.State)
	}
}

func TestCheck_AlertOnFirstObservation(t *testing.T) {
	tr := newTracker(ModeStateful, FirstAlert)
	bars := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})

	res, err := tr.Check(bars, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected HIGH and LOW, got %v", res.Events)
	}
	if res.Events[0].Kind != model.AlertHigh || res.Events[1].Kind != model.AlertLow {
		t.Errorf("kinds = %s, %s", res.Events[0].Kind, res.Events[1].Kind)
	}

	again, err := tr.Check(bars, res.State)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Events) != 0 {
		t.Errorf("first-observation alert must fire only once, got %v", again.Events)
	}
}

func TestCheck_InsufficientData(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	bars := session([2]string{"150", "50"}, [2]string{"151", "49"})

	res, err := tr.Check(bars, prior())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeInsufficient {
		t.Errorf("outcome = %s", res.Outcome)
	}
	if len(res.Events) != 0 || !res.State.Equal(prior()) {
		t.Errorf("expected no-op, got events=%v state=%+v", res.Events, res.State)
	}
}

func TestCheck_EmptySeries(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	res, err := tr.Check(nil, prior())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoData || !res.State.Equal(prior()) || len(res.Events) != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = tr.Check(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != nil {
		t.Errorf("absent prior should stay absent, got %+v", res.State)
	}
}

func TestCheck_StrictInequality(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	// Same value written with a different scale must not re-trigger.
	bars := session([2]string{"100.00", "95.00"}, [2]string{"100", "95"}, [2]string{"99", "96"})
	res, err := tr.Check(bars, prior())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 0 {
		t.Errorf("equal extrema must not alert, got %v", res.Events)
	}
}

func TestCheck_Idempotence(t *testing.T) {
	for _, first := range []FirstObservation{FirstSilent, FirstAlert} {
		tr := newTracker(ModeStateful, first)
		bars := session([2]string{"102", "96"}, [2]string{"101", "93"}, [2]string{"100", "94"})

		for _, p := range []*model.ExtremumState{nil, prior()} {
			r1, err := tr.Check(bars, p)
			if err != nil {
				t.Fatal(err)
			}
			r2, err := tr.Check(bars, r1.State)
			if err != nil {
				t.Fatal(err)
			}
			if len(r2.Events) != 0 {
				t.Errorf("policy %s: second check emitted %v", first, r2.Events)
			}
			if !r2.State.Equal(r1.State) {
				t.Errorf("policy %s: state drifted %+v -> %+v", first, r1.State, r2.State)
			}
		}
	}
}

func TestCheck_MonotonicState(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	cases := [][][2]string{
		{{"99", "96"}, {"98", "97"}, {"97", "96"}},
		{{"120", "96"}, {"98", "80"}, {"97", "96"}},
		{{"100", "95"}, {"100", "95"}, {"100", "95"}},
	}
	for i, c := range cases {
		res, err := tr.Check(session(c...), prior())
		if err != nil {
			t.Fatal(err)
		}
		p := prior()
		if res.State.RunningHigh.LessThan(p.RunningHigh) || res.State.RunningLow.GreaterThan(p.RunningLow) {
			t.Errorf("case %d: state regressed to %s/%s", i, res.State.RunningHigh, res.State.RunningLow)
		}
	}
}

func TestCheck_SessionRollover(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	yesterday := &model.ExtremumState{SessionDate: "2024-01-09", RunningHigh: d("500"), RunningLow: d("1")}
	bars := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})

	res, err := tr.Check(bars, yesterday)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 0 {
		t.Errorf("rollover must reset the baseline silently, got %v", res.Events)
	}
	if res.State.SessionDate != "2024-01-10" || !res.State.RunningHigh.Equal(d("101")) || !res.State.RunningLow.Equal(d("94")) {
		t.Errorf("state = %+v", res.State)
	}
}

func TestCheck_StaleSessionIsNoop(t *testing.T) {
	tr := New(Config{
		MinBars:  3,
		Location: ist,
		Clock:    clockAt(time.Date(2024, 1, 11, 9, 0, 0, 0, ist)),
	})
	bars := session([2]string{"150", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})

	res, err := tr.Check(bars, prior())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeStale || len(res.Events) != 0 || !res.State.Equal(prior()) {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCheck_UTCTimestampsAreLocalized(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	bars := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})
	for i := range bars {
		bars[i].Time = bars[i].Time.UTC()
	}
	res, err := tr.Check(bars, prior())
	if err != nil {
		t.Fatal(err)
	}
	if res.SessionDate != "2024-01-10" {
		t.Errorf("session = %s", res.SessionDate)
	}
	if loc := res.Events[0].BarTime.Location(); loc != ist {
		t.Errorf("event bar time not localized: %v", loc)
	}
}

func TestCheck_InvalidInput(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)

	multi := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})
	multi[2].Time = multi[2].Time.Add(24 * time.Hour)

	inverted := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})
	inverted[1].High, inverted[1].Low = d("90"), d("91")

	zero := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"})
	zero[0].Low = decimal.Zero
	zero[0].Open = decimal.Zero

	for name, bars := range map[string][]model.Bar{"multi-session": multi, "inverted": inverted, "zero-low": zero} {
		res, err := tr.Check(bars, prior())
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
		if res != nil {
			t.Errorf("%s: expected nil result", name)
		}
	}
}

func TestCheck_GapsAreReportedNotFatal(t *testing.T) {
	tr := newTracker(ModeStateful, FirstSilent)
	bars := session([2]string{"99", "96"}, [2]string{"101", "97"}, [2]string{"100", "94"}, [2]string{"98", "96"})
	bars[2].Time = bars[2].Time.Add(20 * time.Minute) // hole
	bars[3].Time = bars[0].Time.Add(time.Minute)      // out of order

	res, err := tr.Check(bars, prior())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Gaps) != 2 {
		t.Fatalf("expected 2 gaps, got %d: %v", len(res.Gaps), res.Gaps)
	}
	if !errors.Is(res.Gaps[0], ErrDataGap) || res.Gaps[0].Missing != 20*time.Minute {
		t.Errorf("first gap = %v", res.Gaps[0])
	}
	if res.Gaps[1].Reason == "" {
		t.Errorf("second gap should explain ordering: %v", res.Gaps[1])
	}
	if len(res.Events) != 2 {
		t.Errorf("best-effort check should still alert HIGH and LOW, got %v", res.Events)
	}
}

func TestCheckStateless(t *testing.T) {
	tr := newTracker(ModeStateless, FirstSilent)

	tests := []struct {
		name  string
		bars  []model.Bar
		kinds []model.AlertKind
	}{
		{"last bar breaks high", session([2]string{"100", "96"}, [2]string{"101", "97"}, [2]string{"102", "98"}), []model.AlertKind{model.AlertHigh}},
		{"last bar breaks low", session([2]string{"100", "96"}, [2]string{"101", "97"}, [2]string{"99", "95"}), []model.AlertKind{model.AlertLow}},
		{"outside bar", session([2]string{"100", "96"}, [2]string{"101", "97"}, [2]string{"105", "90"}), []model.AlertKind{model.AlertHigh, model.AlertLow}},
		{"equal to prior high", session([2]string{"100", "96"}, [2]string{"101", "97"}, [2]string{"101", "97"}), nil},
	}
	for _, tt := range tests {
		res, err := tr.Check(tt.bars, prior())
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(res.Events) != len(tt.kinds) {
			t.Errorf("%s: got %d events, want %d", tt.name, len(res.Events), len(tt.kinds))
			continue
		}
		for i, k := range tt.kinds {
			if res.Events[i].Kind != k {
				t.Errorf("%s: event %d = %s, want %s", tt.name, i, res.Events[i].Kind, k)
			}
		}
	}
}

func TestCheckStateless_IgnoresPrior(t *testing.T) {
	tr := newTracker(ModeStateless, FirstSilent)
	bars := session([2]string{"100", "96"}, [2]string{"101", "97"}, [2]string{"99", "97"})
	huge := &model.ExtremumState{SessionDate: "2024-01-10", RunningHigh: d("1"), RunningLow: d("1000")}

	res, err := tr.Check(bars, huge)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 0 {
		t.Errorf("stateless mode must not use prior, got %v", res.Events)
	}
	if !res.State.RunningHigh.Equal(d("101")) || !res.State.RunningLow.Equal(d("96")) {
		t.Errorf("state = %+v", res.State)
	}
}

func TestCheckStateless_KeepsSessionRangeFromPrior(t *testing.T) {
	tr := newTracker(ModeStateless, FirstSilent)
	bars := session([2]string{"100", "96"}, [2]string{"101", "97"}, [2]string{"102", "98"})

	wider := &model.ExtremumState{SessionDate: "2024-01-10", RunningHigh: d("110"), RunningLow: d("90")}
	res, err := tr.Check(bars, wider)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 || res.Events[0].Kind != model.AlertHigh {
		t.Errorf("events = %v, want a window high", res.Events)
	}
	if !res.State.RunningHigh.Equal(d("110")) || !res.State.RunningLow.Equal(d("90")) {
		t.Errorf("persisted range shrank: %+v", res.State)
	}

	yesterday := &model.ExtremumState{SessionDate: "2024-01-09", RunningHigh: d("110"), RunningLow: d("90")}
	res, err = tr.Check(bars, yesterday)
	if err != nil {
		t.Fatal(err)
	}
	if !res.State.RunningHigh.Equal(d("102")) || !res.State.RunningLow.Equal(d("96")) {
		t.Errorf("previous session leaked into state: %+v", res.State)
	}
}
