package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ExtremaSentinel/internal/archive"
	"ExtremaSentinel/internal/collector"
	"ExtremaSentinel/internal/config"
	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/metrics"
	"ExtremaSentinel/internal/monitor"
	"ExtremaSentinel/internal/notifier"
	"ExtremaSentinel/internal/recorder"
	"ExtremaSentinel/internal/scheduler"
	"ExtremaSentinel/internal/store"
	"ExtremaSentinel/internal/tracker"
)

const (
	exitOK          = 0
	exitRuntimeErr  = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger().WithComponent("main")
	log.Info("ExtremaSentinel starting...")

	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Error("load .env")
		return exitConfigError
	}

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.WithError(err).Error("load config")
		return exitConfigError
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("config validation")
		return exitConfigError
	}
	if err := logger.GetLogger().Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.MaxAge); err != nil {
		log.WithError(err).Error("configure logger")
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("init")
		return exitConfigError
	}
	defer app.close()

	if cfg.Schedule.Mode == "daemon" {
		return runDaemon(ctx, cfg, app)
	}
	return runOnce(ctx, app)
}

type components struct {
	monitor  *monitor.Monitor
	telegram *notifier.TelegramNotifier
	closers  []func() error
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.GetLogger().WithComponent("main").WithError(err).Warn("close")
		}
	}
}

func build(ctx context.Context, cfg *config.Config) (*components, error) {
	log := logger.GetLogger().WithComponent("main")
	loc := cfg.Location()
	app := &components{}

	// Init fetcher
	var fetcher collector.Fetcher
	switch cfg.DataSource.Provider {
	case "rest":
		fetcher = collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	case "mock":
		fetcher = &collector.MockFetcher{}
	default:
		fetcher = collector.NewYahooFetcher(cfg.Proxy, cfg.DataSource.RequestsPerMinute)
	}
	log.WithField("source", fetcher.Name()).Info("data source selected")
	col := collector.NewCollector(fetcher, cfg.DataSource.Symbol, cfg.Market.Interval, cfg.Market.Lookback, loc)

	st, err := store.Open(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, st.Close)

	// Init sink
	var sink notifier.Sink
	if cfg.Telegram.DryRun {
		sink = notifier.LogSink{}
		log.Info("dry run: alerts are logged, not sent")
	} else {
		app.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sink = app.telegram
	}

	// Init recorders
	var recs recorder.Multi
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.WithError(err).Warn("init sqlite recorder failed, skipping")
		} else {
			recs = append(recs, sr)
		}
	}
	if cfg.Journal.Dir != "" {
		j, err := recorder.NewCSVJournal(cfg.Journal.Dir, loc)
		if err != nil {
			log.WithError(err).Warn("init csv journal failed, skipping")
		} else {
			recs = append(recs, j)
		}
	}
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if len(recs) > 0 {
		rec = recs
		app.closers = append(app.closers, recs.Close)
	}

	var arch *archive.Archiver
	if cfg.Archive.Enabled {
		var up archive.Uploader
		if cfg.Archive.S3.Enabled {
			s3c := cfg.Archive.S3
			u, err := archive.NewS3Uploader(ctx, archive.S3Config{
				Bucket:          s3c.Bucket,
				Prefix:          s3c.Prefix,
				Region:          s3c.Region,
				Endpoint:        s3c.Endpoint,
				PathStyle:       s3c.PathStyle,
				AccessKeyID:     s3c.AccessKeyID,
				SecretAccessKey: s3c.SecretAccessKey,
			})
			if err != nil {
				log.WithError(err).Warn("init s3 uploader failed, archiving locally only")
			} else {
				up = u
			}
		}
		if arch, err = archive.New(cfg.Archive.Dir, cfg.Archive.Format, up); err != nil {
			return nil, err
		}
	}

	var pub metrics.Publisher = metrics.NoopPublisher{}
	if cfg.Metrics.CloudWatch {
		cw, err := metrics.NewCloudWatchPublisher(ctx, cfg.Metrics.Region, cfg.Metrics.Namespace)
		if err != nil {
			log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		} else {
			pub = cw
		}
	}

	trk := tracker.New(tracker.Config{
		Mode:             tracker.Mode(cfg.Tracker.Mode),
		FirstObservation: tracker.FirstObservation(cfg.Tracker.FirstObservation),
		MinBars:          cfg.Tracker.MinBars,
		Location:         loc,
		Interval:         cfg.Market.Interval,
	})

	app.monitor = monitor.New(monitor.Deps{
		Collector: col,
		Tracker:   trk,
		Store:     st,
		Sink:      sink,
		Recorder:  rec,
		Archiver:  arch,
		Metrics:   pub,
	}, monitor.Options{
		Symbol:          cfg.DataSource.Symbol,
		DisplayName:     cfg.DataSource.DisplayName,
		Location:        loc,
		PersistPolicy:   monitor.PersistPolicy(cfg.Tracker.PersistPolicy),
		SummaryDays:     cfg.Summary.Days,
		SummaryMinBars:  cfg.Summary.MinBars,
		SummaryInterval: cfg.Summary.Interval,
		SummaryLookback: time.Duration(cfg.Summary.LookbackDays) * 24 * time.Hour,
	})
	return app, nil
}

// runOnce performs a single check. Source outages, rejected provider data and
// lost-update conflicts leave the state intact and are not failures of the run.
func runOnce(ctx context.Context, app *components) int {
	log := logger.GetLogger().WithComponent("main")
	report, err := app.monitor.RunCheck(ctx)
	switch {
	case err == nil:
		log.WithField("outcome", report.Outcome).Info("ExtremaSentinel finished")
		return exitOK
	case errors.Is(err, collector.ErrSourceUnavailable),
		errors.Is(err, tracker.ErrInvalidInput),
		errors.Is(err, monitor.ErrStateConflict):
		log.WithError(err).Warn("check skipped")
		return exitOK
	default:
		log.WithError(err).Error("check failed")
		return exitRuntimeErr
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, app *components) int {
	log := logger.GetLogger().WithComponent("main")

	sched := scheduler.NewScheduler(ctx, app.monitor, cfg.Location())
	if err := sched.RegisterAll(cfg.Schedule.CheckCron, cfg.Schedule.SummaryCron); err != nil {
		log.WithError(err).Error("register cron tasks")
		return exitConfigError
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	if app.telegram != nil {
		g.Go(func() error {
			app.telegram.StartPolling(gctx, sched.HandleCommand)
			return nil
		})
		log.Info("Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info("RUN_ON_START enabled, executing check now")
		g.Go(func() error {
			if _, err := sched.RunCheckNow(); err != nil {
				log.WithError(err).Warn("startup check")
			}
			return nil
		})
	}

	log.Info("ExtremaSentinel is running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("daemon stopped")
		return exitRuntimeErr
	}
	log.Info("ExtremaSentinel stopped")
	return exitOK
}
