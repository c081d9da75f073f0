// Package monitor runs one complete check: fetch, compare, notify, persist.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ExtremaSentinel/internal/archive"
	"ExtremaSentinel/internal/calculator"
	"ExtremaSentinel/internal/collector"
	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/metrics"
	"ExtremaSentinel/internal/model"
	"ExtremaSentinel/internal/notifier"
	"ExtremaSentinel/internal/recorder"
	"ExtremaSentinel/internal/store"
	"ExtremaSentinel/internal/tracker"
)

// PersistPolicy decides whether new state is saved when an alert could not
// be delivered.
type PersistPolicy string

const (
	// PersistAlways saves state even if delivery failed; the alert is lost
	// but never repeated.
	PersistAlways PersistPolicy = "always"
	// PersistAfterDelivery saves state only when every alert was delivered,
	// so a failed alert is retried on the next run.
	PersistAfterDelivery PersistPolicy = "after_delivery"
)

// Outcomes reported in addition to the tracker's own.
const (
	OutcomeSourceError  = "source_error"
	OutcomeInvalidInput = "invalid_input"
)

// ErrStateConflict is reported when another writer changed the state between
// read and write. The other writer's state is kept.
var ErrStateConflict = errors.New("state changed concurrently")

// Options configures a Monitor.
type Options struct {
	Symbol          string
	DisplayName     string
	Location        *time.Location
	PersistPolicy   PersistPolicy
	SummaryDays     int
	SummaryMinBars  int
	SummaryInterval time.Duration
	SummaryLookback time.Duration
	Clock           func() time.Time
}

// Deps are the collaborators of a Monitor. Recorder, Archiver and Metrics
// are optional.
type Deps struct {
	Collector *collector.Collector
	Tracker   *tracker.Tracker
	Store     store.Store
	Sink      notifier.Sink
	Recorder  recorder.Recorder
	Archiver  *archive.Archiver
	Metrics   metrics.Publisher
}

// CheckReport describes what one RunCheck did.
type CheckReport struct {
	RunID            string
	Outcome          string
	SessionDate      string
	Bars             int
	Events           []model.AlertEvent
	Delivered        int
	DeliveryFailures int
	Gaps             int
	Persisted        bool
	State            *model.ExtremumState
}

// Monitor wires the tracker to its data source, state store and sink.
type Monitor struct {
	deps Deps
	opts Options
	log  *logger.Entry
}

func New(deps Deps, opts Options) *Monitor {
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopPublisher{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PersistPolicy == "" {
		opts.PersistPolicy = PersistAlways
	}
	if opts.DisplayName == "" {
		opts.DisplayName = opts.Symbol
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Monitor{
		deps: deps,
		opts: opts,
		log:  logger.GetLogger().WithComponent("monitor").WithField("symbol", opts.Symbol),
	}
}

// RunCheck performs one check. A source failure is returned wrapped in
// collector.ErrSourceUnavailable with the state untouched; delivery failures
// are counted in the report, never returned.
func (m *Monitor) RunCheck(ctx context.Context) (*CheckReport, error) {
	report := &CheckReport{RunID: uuid.NewString()}
	log := m.log.WithField("run_id", report.RunID)
	cm := metrics.CheckMetrics{Symbol: m.opts.Symbol, Checks: 1}
	defer func() {
		cm.Alerts = len(report.Events)
		cm.DeliveryFailures = report.DeliveryFailures
		if err := m.deps.Metrics.Publish(ctx, cm); err != nil {
			log.WithError(err).Warn("publish metrics")
		}
	}()

	bars, session, err := m.deps.Collector.Session(ctx)
	report.SessionDate = session
	if err != nil {
		report.Outcome = OutcomeSourceError
		cm.SourceFailures = 1
		log.WithError(err).Warn("market data unavailable, skipping run")
		m.recordCheck(report, nil, err)
		return report, err
	}
	report.Bars = len(bars)

	prior, err := m.deps.Store.Get(ctx, m.opts.Symbol)
	if err != nil {
		return report, fmt.Errorf("load state: %w", err)
	}

	res, err := m.deps.Tracker.Check(bars, prior)
	if err != nil {
		report.Outcome = OutcomeInvalidInput
		log.WithError(err).Error("tracker rejected bars, state left untouched")
		m.recordCheck(report, nil, err)
		return report, err
	}
	report.Outcome = string(res.Outcome)
	report.Events = res.Events
	report.Gaps = len(res.Gaps)
	report.State = res.State
	for _, g := range res.Gaps {
		log.WithError(g).Warn("data gap")
	}

	for _, ev := range res.Events {
		text := notifier.FormatAlert(m.opts.DisplayName, ev, m.opts.Location)
		rec := &recorder.AlertRecord{
			RunID:       report.RunID,
			Symbol:      m.opts.Symbol,
			SessionDate: res.SessionDate,
			Kind:        string(ev.Kind),
			Value:       ev.Value,
			BarTime:     ev.BarTime,
			At:          ev.At,
		}
		if err := m.deps.Sink.Notify(ctx, text); err != nil {
			report.DeliveryFailures++
			rec.Error = err.Error()
			log.WithError(err).WithField("kind", ev.Kind).Error("alert delivery failed")
		} else {
			report.Delivered++
			rec.Delivered = true
			log.WithFields(logger.Fields{"kind": ev.Kind, "value": ev.Value.String()}).Info("alert sent")
		}
		if err := m.deps.Recorder.RecordAlert(rec); err != nil {
			log.WithError(err).Warn("record alert")
		}
	}

	var persistErr error
	if res.Changed(prior) {
		persistErr = m.persist(ctx, prior, res.State, report)
	}

	if m.deps.Archiver != nil && len(bars) > 0 {
		if _, err := m.deps.Archiver.Save(ctx, m.opts.Symbol, session, bars); err != nil {
			log.WithError(err).Warn("archive bars")
		}
	}
	m.recordCheck(report, res.State, persistErr)

	log.WithFields(logger.Fields{
		"outcome":   report.Outcome,
		"session":   report.SessionDate,
		"bars":      report.Bars,
		"alerts":    len(report.Events),
		"persisted": report.Persisted,
	}).Info("check complete")
	return report, persistErr
}

func (m *Monitor) persist(ctx context.Context, prior, next *model.ExtremumState, report *CheckReport) error {
	if m.opts.PersistPolicy == PersistAfterDelivery && report.DeliveryFailures > 0 {
		m.log.WithField("failures", report.DeliveryFailures).Warn("state not persisted, alerts will be retried next run")
		return nil
	}
	ok, err := m.deps.Store.CompareAndSwap(ctx, m.opts.Symbol, prior, next)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if !ok {
		m.log.Warn("state was changed by another writer, keeping theirs")
		return ErrStateConflict
	}
	report.Persisted = true
	return nil
}

func (m *Monitor) recordCheck(report *CheckReport, state *model.ExtremumState, err error) {
	evt := &recorder.CheckEvent{
		RunID:       report.RunID,
		Symbol:      m.opts.Symbol,
		SessionDate: report.SessionDate,
		Outcome:     report.Outcome,
		Bars:        report.Bars,
		Alerts:      len(report.Events),
		Gaps:        report.Gaps,
		Persisted:   report.Persisted,
		At:          m.opts.Clock(),
	}
	if state != nil {
		evt.High, evt.Low = state.RunningHigh, state.RunningLow
	}
	if err != nil {
		evt.Error = err.Error()
	}
	if err := m.deps.Recorder.RecordCheck(evt); err != nil {
		m.log.WithError(err).Warn("record check")
	}
}

// Summary builds the multi-day report text.
func (m *Monitor) Summary(ctx context.Context) (string, error) {
	bars, err := m.deps.Collector.History(ctx, m.opts.SummaryInterval, m.opts.SummaryLookback)
	if err != nil {
		return "", err
	}
	report := calculator.BuildSummaryReport(m.opts.Symbol, bars, m.opts.Location,
		m.opts.SummaryMinBars, m.opts.SummaryDays, m.opts.Clock())
	return notifier.FormatDailySummary(m.opts.DisplayName, report, m.opts.Location), nil
}

// SendSummary builds the summary and delivers it through the sink.
func (m *Monitor) SendSummary(ctx context.Context) error {
	text, err := m.Summary(ctx)
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}
	if err := m.deps.Sink.Notify(ctx, text); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	return nil
}

// Status renders the persisted state.
func (m *Monitor) Status(ctx context.Context) (string, error) {
	state, err := m.deps.Store.Get(ctx, m.opts.Symbol)
	if err != nil {
		return "", fmt.Errorf("load state: %w", err)
	}
	return notifier.FormatStatus(m.opts.DisplayName, state, m.opts.Location), nil
}

// FormatReport renders a CheckReport as a short reply for chat commands.
func FormatReport(r *CheckReport) string {
	if r == nil {
		return "no report"
	}
	s := fmt.Sprintf("Check %s: %s", r.SessionDate, r.Outcome)
	if r.State != nil {
		s += fmt.Sprintf(" | high %s low %s", r.State.RunningHigh.StringFixed(2), r.State.RunningLow.StringFixed(2))
	}
	if n := len(r.Events); n > 0 {
		s += fmt.Sprintf(" | %d alert(s)", n)
	}
	return s
}
