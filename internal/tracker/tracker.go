// Package tracker decides whether a trading session has printed a new high
// or a new low since the previous check.
//
// The tracker is pure: it never fetches, persists or notifies. The caller
// hands it the current session's bars and the previously persisted state and
// gets back the alert events plus the state to persist.
package tracker

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/calculator"
	"ExtremaSentinel/internal/model"
)

// Mode selects what a new bar is compared against.
type Mode string

const (
	// ModeStateful compares the session range against the persisted extrema.
	ModeStateful Mode = "stateful"
	// ModeStateless compares the last bar against the rest of the window.
	ModeStateless Mode = "stateless"
)

// FirstObservation decides what happens when a session has no baseline yet.
type FirstObservation string

const (
	// FirstSilent records the first observed range without alerting.
	FirstSilent FirstObservation = "silent"
	// FirstAlert announces the first observed high and low once.
	FirstAlert FirstObservation = "alert"
)

// Outcome describes how a check ended.
type Outcome string

const (
	OutcomeChecked      Outcome = "checked"
	OutcomeNoData       Outcome = "no_data"
	OutcomeInsufficient Outcome = "insufficient_data"
	OutcomeStale        Outcome = "stale_session"
)

// DefaultMinBars is the insufficient-data threshold used when none is set.
const DefaultMinBars = 3

// Config controls a Tracker.
type Config struct {
	Mode             Mode
	FirstObservation FirstObservation
	MinBars          int
	Location         *time.Location   // exchange timezone
	Interval         time.Duration    // expected bar spacing; 0 disables gap detection
	Clock            func() time.Time // defaults to time.Now
}

// Result is the outcome of one check.
type Result struct {
	Outcome     Outcome
	SessionDate string
	Events      []model.AlertEvent
	State       *model.ExtremumState
	Gaps        []*DataGapError
}

// Changed reports whether the returned state differs from prior.
func (r *Result) Changed(prior *model.ExtremumState) bool {
	return !r.State.Equal(prior)
}

// Tracker implements the day-extremum check.
type Tracker struct {
	cfg Config
}

// New creates a Tracker, filling in defaults.
func New(cfg Config) *Tracker {
	if cfg.Mode == "" {
		cfg.Mode = ModeStateful
	}
	if cfg.FirstObservation == "" {
		cfg.FirstObservation = FirstSilent
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = DefaultMinBars
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Tracker{cfg: cfg}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config { return t.cfg }

// Check evaluates bars against prior. Bars must belong to a single session;
// prior may be nil.
func (t *Tracker) Check(bars []model.Bar, prior *model.ExtremumState) (*Result, error) {
	now := t.cfg.Clock().In(t.cfg.Location)
	noop := func(o Outcome, session string) *Result {
		return &Result{Outcome: o, SessionDate: session, State: prior.Clone()}
	}

	if len(bars) == 0 {
		return noop(OutcomeNoData, ""), nil
	}

	local := make([]model.Bar, len(bars))
	for i, b := range bars {
		if err := validateBar(b); err != nil {
			return nil, fmt.Errorf("%w: bar %d at %s: %v", ErrInvalidInput, i, b.Time.Format(time.RFC3339), err)
		}
		b.Time = b.Time.In(t.cfg.Location)
		local[i] = b
	}

	session := local[0].SessionDate(t.cfg.Location)
	for _, b := range local[1:] {
		if d := b.SessionDate(t.cfg.Location); d != session {
			return nil, fmt.Errorf("%w: bars span sessions %s and %s", ErrInvalidInput, session, d)
		}
	}
	if session != model.SessionDateOf(now, t.cfg.Location) {
		return noop(OutcomeStale, session), nil
	}

	minBars := t.cfg.MinBars
	if t.cfg.Mode == ModeStateless && minBars < 2 {
		minBars = 2
	}
	if len(local) < minBars {
		return noop(OutcomeInsufficient, session), nil
	}

	gaps := t.detectGaps(local)
	sort.SliceStable(local, func(i, j int) bool { return local[i].Time.Before(local[j].Time) })

	var res *Result
	var err error
	if t.cfg.Mode == ModeStateless {
		res, err = t.checkStateless(local, prior, session, now)
	} else {
		res, err = t.checkStateful(local, prior, session, now)
	}
	if err != nil {
		return nil, err
	}
	res.Gaps = gaps
	return res, nil
}

func (t *Tracker) checkStateful(bars []model.Bar, prior *model.ExtremumState, session string, now time.Time) (*Result, error) {
	high, low, err := calculator.SessionRange(bars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	res := &Result{Outcome: OutcomeChecked, SessionDate: session}
	state := &model.ExtremumState{SessionDate: session, UpdatedAt: now}

	if prior == nil || prior.SessionDate != session {
		// No baseline for this session yet.
		state.RunningHigh = high.Price
		state.RunningLow = low.Price
		if t.cfg.FirstObservation == FirstAlert {
			res.Events = append(res.Events,
				model.AlertEvent{Kind: model.AlertHigh, Value: high.Price, At: now, BarTime: high.Time},
				model.AlertEvent{Kind: model.AlertLow, Value: low.Price, At: now, BarTime: low.Time},
			)
		}
		res.State = state
		return res, nil
	}

	state.RunningHigh = prior.RunningHigh
	state.RunningLow = prior.RunningLow
	if high.Price.GreaterThan(prior.RunningHigh) {
		state.RunningHigh = high.Price
		res.Events = append(res.Events, model.AlertEvent{Kind: model.AlertHigh, Value: high.Price, At: now, BarTime: high.Time})
	}
	if low.Price.LessThan(prior.RunningLow) {
		state.RunningLow = low.Price
		res.Events = append(res.Events, model.AlertEvent{Kind: model.AlertLow, Value: low.Price, At: now, BarTime: low.Time})
	}
	if len(res.Events) == 0 {
		state.UpdatedAt = prior.UpdatedAt
	}
	res.State = state
	return res, nil
}

// checkStateless alerts on the last bar against the bars before it only. The
// returned state still folds in a same-session prior so the persisted range
// never shrinks when the lookback window is shorter than the session.
func (t *Tracker) checkStateless(bars []model.Bar, prior *model.ExtremumState, session string, now time.Time) (*Result, error) {
	high, low, last, err := calculator.TrailingRange(bars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	res := &Result{Outcome: OutcomeChecked, SessionDate: session}
	state := &model.ExtremumState{SessionDate: session, RunningHigh: high.Price, RunningLow: low.Price, UpdatedAt: now}
	if last.High.GreaterThan(high.Price) {
		state.RunningHigh = last.High
		res.Events = append(res.Events, model.AlertEvent{Kind: model.AlertHigh, Value: last.High, At: now, BarTime: last.Time})
	}
	if last.Low.LessThan(low.Price) {
		state.RunningLow = last.Low
		res.Events = append(res.Events, model.AlertEvent{Kind: model.AlertLow, Value: last.Low, At: now, BarTime: last.Time})
	}
	if prior != nil && prior.SessionDate == session {
		state.RunningHigh = decimal.Max(state.RunningHigh, prior.RunningHigh)
		state.RunningLow = decimal.Min(state.RunningLow, prior.RunningLow)
	}
	res.State = state
	return res, nil
}

// detectGaps reports out-of-order timestamps and holes wider than the bar
// interval, in input order.
func (t *Tracker) detectGaps(bars []model.Bar) []*DataGapError {
	var gaps []*DataGapError
	for i := 1; i < len(bars); i++ {
		prev, next := bars[i-1].Time, bars[i].Time
		switch {
		case !next.After(prev):
			gaps = append(gaps, &DataGapError{Prev: prev, Next: next, Reason: "non-monotonic timestamps"})
		case t.cfg.Interval > 0 && next.Sub(prev) > t.cfg.Interval:
			gaps = append(gaps, &DataGapError{Prev: prev, Next: next, Missing: next.Sub(prev) - t.cfg.Interval})
		}
	}
	return gaps
}

func validateBar(b model.Bar) error {
	switch {
	case b.Time.IsZero():
		return fmt.Errorf("missing timestamp")
	case !b.Low.IsPositive():
		return fmt.Errorf("non-positive low %s", b.Low)
	case b.High.LessThan(b.Low):
		return fmt.Errorf("high %s below low %s", b.High, b.Low)
	case b.Open.LessThan(b.Low) || b.Open.GreaterThan(b.High):
		return fmt.Errorf("open %s outside [%s, %s]", b.Open, b.Low, b.High)
	case b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High):
		return fmt.Errorf("close %s outside [%s, %s]", b.Close, b.Low, b.High)
	case b.Volume < 0:
		return fmt.Errorf("negative volume %d", b.Volume)
	}
	return nil
}
