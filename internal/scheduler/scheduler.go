package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ExtremaSentinel/internal/collector"
	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/monitor"
)

// Monitor is the part of monitor.Monitor the scheduler drives.
type Monitor interface {
	RunCheck(ctx context.Context) (*monitor.CheckReport, error)
	SendSummary(ctx context.Context) error
	Summary(ctx context.Context) (string, error)
	Status(ctx context.Context) (string, error)
}

// Scheduler manages the cron tasks and chat commands.
type Scheduler struct {
	Cron    *cron.Cron
	Monitor Monitor
	Ctx     context.Context

	mu  sync.Mutex // serializes checks from cron and commands
	log *logger.Entry
}

// NewScheduler creates a new Scheduler whose cron expressions are read in loc.
func NewScheduler(ctx context.Context, mon Monitor, loc *time.Location) *Scheduler {
	log := logger.GetLogger().WithComponent("scheduler")
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
		Monitor: mon,
		Ctx:     ctx,
		log:     log,
	}
}

// RegisterAll registers the intraday check and the end-of-day summary.
func (s *Scheduler) RegisterAll(checkCron, summaryCron string) error {
	if _, err := s.Cron.AddFunc(checkCron, s.checkTask); err != nil {
		return fmt.Errorf("register check task: %w", err)
	}
	if summaryCron != "" {
		if _, err := s.Cron.AddFunc(summaryCron, s.summaryTask); err != nil {
			return fmt.Errorf("register summary task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.WithField("entries", len(s.Cron.Entries())).Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunCheckNow executes a check immediately (manual trigger / run on start).
func (s *Scheduler) RunCheckNow() (*monitor.CheckReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Monitor.RunCheck(s.Ctx)
}

func (s *Scheduler) checkTask() {
	s.log.Debug("running scheduled check")
	if _, err := s.RunCheckNow(); err != nil {
		if errors.Is(err, collector.ErrSourceUnavailable) || errors.Is(err, monitor.ErrStateConflict) {
			s.log.WithError(err).Warn("scheduled check skipped")
			return
		}
		s.log.WithError(err).Error("scheduled check failed")
	}
}

func (s *Scheduler) summaryTask() {
	s.log.Info("running daily summary")
	if err := s.Monitor.SendSummary(s.Ctx); err != nil {
		s.log.WithError(err).Error("daily summary failed")
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	var cmd string
	if fields := strings.Fields(command); len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i] // /status@MyBot
	}
	switch cmd {
	case "/status":
		text, err := s.Monitor.Status(ctx)
		if err != nil {
			return failureReply("status", err)
		}
		return text
	case "/check":
		report, err := s.RunCheckNow()
		if err != nil {
			return failureReply("check", err)
		}
		return monitor.FormatReport(report)
	case "/summary":
		text, err := s.Monitor.Summary(ctx)
		if err != nil {
			return failureReply("summary", err)
		}
		return text
	default:
		return "Available commands:\n• /status\n• /check\n• /summary"
	}
}

// failureReply renders err for an HTML-mode reply; provider errors can carry
// markup from upstream error pages.
func failureReply(what string, err error) string {
	return fmt.Sprintf("❌ %s failed: %s", what, html.EscapeString(err.Error()))
}
