package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"train-positions/internal/api"
	"train-positions/internal/config"
	"train-positions/internal/db"
	"train-positions/internal/feed"
	model "train-positions/internal/gtfs"
	"train-positions/internal/livefeed"
	"train-positions/internal/logging"
	"train-positions/internal/metrics"
	"train-positions/internal/publisher"
	"train-positions/internal/sim"
)

const importCheckInterval = 30 * time.Minute

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewStructuredLogger(os.Stdout, cfg.LogLevel)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		f             *model.Feed
		sqlDB         *sql.DB
		currentDBName string
	)
	if cfg.ScheduleSource != "" {
		if f, err = feed.Load(ctx, cfg.ScheduleSource); err != nil {
			log.Fatalf("load schedule %q: %v", cfg.ScheduleSource, err)
		}
		logger.Info("schedule loaded", slog.String("source", cfg.ScheduleSource))
	} else {
		if sqlDB, currentDBName, err = db.OpenSchedule(ctx, cfg.DatabaseURL, cfg.City); err != nil {
			log.Fatalf("open schedule database: %v", err)
		}
		defer func() { sqlDB.Close() }()
		if f, err = db.LoadSchedule(ctx, sqlDB); err != nil {
			log.Fatalf("load schedule from database: %v", err)
		}
		logger.Info("schedule loaded", slog.String("database", currentDBName), slog.String("city", cfg.City))
	}

	sched, err := buildSchedule(f, cfg.Matching, logger)
	if err != nil {
		log.Fatalf("build schedule: %v", err)
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TickInterval, cfg.ReconcileInterval)
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	mcol.SetSchedule(len(sched.Trips), len(sched.Rejected))

	var pub sim.Publisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, logger, mcol)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer np.Close()
		pub = np
	} else {
		logger.Info("NATS_URL not set, snapshot publishing disabled")
	}

	var live sim.LiveSource
	if cfg.LiveFeedURL != "" {
		live = livefeed.NewClient(livefeed.Config{
			URLTemplate: cfg.LiveFeedURL,
			BatchSize:   cfg.LiveBatchSize,
			BatchPause:  cfg.LiveBatchPause,
			Timeout:     cfg.LiveTimeout,
		}, logger, mcol)
	} else {
		logger.Info("LIVE_FEED_URL not set, reconciliation disabled")
	}

	start := func(s *model.Schedule) *sim.Manager {
		aliases := cfg.Matching.Aliases()
		if aliases == nil {
			aliases = sim.DefaultAliases
		}
		engine := sim.New(s, sim.Options{Logger: logger, Matcher: sim.NewDestinationMatcher(aliases)})
		mgr := sim.NewManager(engine, pub, live, sim.ManagerConfig{
			TickInterval:      cfg.TickInterval,
			ReconcileInterval: cfg.ReconcileInterval,
			Location:          cfg.Location,
			Logger:            logger,
		}, mcol)
		mgr.Start(ctx)
		return mgr
	}
	mgr := start(sched)
	server := api.NewServer(mgr, cfg.UpcomingWindow, logger, mcol)

	// Periodic city DB watcher: switch to a newer import when one lands.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if sqlDB == nil || cfg.City == "" {
			return
		}
		ticker := time.NewTicker(importCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			reason := ""
			if err := db.Ping(ctx, sqlDB); err != nil {
				logging.LogError(logger, "db ping failed, re-resolving city DB", err)
				reason = "ping_failure"
			}
			newDB, newName, err := db.OpenSchedule(ctx, cfg.DatabaseURL, cfg.City)
			if err != nil {
				logging.LogError(logger, "resolve latest import", err, slog.String("city", cfg.City))
				continue
			}
			if reason == "" && newName == currentDBName {
				newDB.Close()
				continue
			}
			if reason == "" {
				reason = "update"
			}

			var next *model.Schedule
			nf, err := db.LoadSchedule(ctx, newDB)
			if err == nil {
				next, err = buildSchedule(nf, cfg.Matching, logger)
			}
			if err != nil {
				logging.LogError(logger, "reload schedule", err, slog.String("database", newName))
				newDB.Close()
				continue
			}

			mcol.ScheduleReloadInc(reason)
			mcol.SetSchedule(len(next.Trips), len(next.Rejected))
			logger.Info("switching schedule database",
				slog.String("city", cfg.City),
				slog.String("from", currentDBName),
				slog.String("to", newName),
				slog.String("reason", reason))

			mgr.Stop()
			sqlDB.Close()
			sqlDB, currentDBName = newDB, newName
			mgr = start(next)
			server.SetManager(mgr)
		}
	}()

	// Blocks until ctx is cancelled
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.LogError(logger, "http server", err)
		cancel()
	}
	<-done
	mgr.Stop()
	logger.Info("shutdown complete")
}

// buildSchedule validates the feed, logs the report and indexes it.
func buildSchedule(f *model.Feed, m *config.Matching, logger *slog.Logger) (*model.Schedule, error) {
	report := model.Validate(f, m.Bounds)
	for _, e := range report.Errors {
		logger.Error("schedule validation", slog.String("error", e))
	}
	for _, w := range report.Warnings {
		logger.Warn("schedule validation", slog.String("warning", w))
	}

	s, err := model.NewSchedule(f, model.Options{
		StationCodes:   m.StationCodes,
		ServiceNumbers: m.ServiceNumbers,
	})
	if err != nil {
		return nil, err
	}
	for _, r := range s.Rejected {
		logger.Warn("trip rejected", slog.String("trip_id", r.TripID), slog.String("reason", r.Reason))
	}
	logger.Info("schedule indexed",
		slog.Int("trips", len(s.Trips)),
		slog.Int("stops", len(s.Stops)),
		slog.Int("shapes", len(s.Shapes)),
		slog.Int("rejected", len(s.Rejected)))
	return s, nil
}
