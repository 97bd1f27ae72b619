// Command convert loads a GTFS zip, validates it and writes the JSON schedule
// snapshot the simulator can start from via SCHEDULE_SOURCE.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"train-positions/internal/config"
	"train-positions/internal/feed"
	model "train-positions/internal/gtfs"
	"train-positions/internal/logging"
)

func main() {
	var (
		in       string
		out      string
		matching string
		force    bool
		level    string
	)
	flag.StringVar(&in, "in", "", "GTFS zip path or http(s) URL")
	flag.StringVar(&out, "out", "schedule.json", "output snapshot path")
	flag.StringVar(&matching, "matching", "", "matching config YAML (bounds, station codes)")
	flag.BoolVar(&force, "force", false, "write the snapshot even when validation reports errors")
	flag.StringVar(&level, "log-level", "info", "log level (debug|info|warn|error)")
	flag.Parse()

	if in == "" {
		flag.Usage()
		os.Exit(2)
	}
	logger := logging.NewStructuredLogger(os.Stderr, logging.ParseLevel(level))

	m, err := config.LoadMatching(matching)
	if err != nil {
		log.Fatalf("matching config: %v", err)
	}

	f, err := feed.Load(context.Background(), in)
	if err != nil {
		log.Fatalf("load %q: %v", in, err)
	}

	report := model.Validate(f, m.Bounds)
	for _, w := range report.Warnings {
		logger.Warn("validation", slog.String("warning", w))
	}
	for _, e := range report.Errors {
		logger.Error("validation", slog.String("error", e))
	}
	if !report.OK() && !force {
		log.Fatalf("validation failed with %d errors (use -force to write anyway)", len(report.Errors))
	}

	s, err := model.NewSchedule(f, model.Options{StationCodes: m.StationCodes, ServiceNumbers: m.ServiceNumbers})
	if err != nil {
		log.Fatalf("index schedule: %v", err)
	}
	for _, r := range s.Rejected {
		logger.Warn("trip rejected", slog.String("trip_id", r.TripID), slog.String("reason", r.Reason))
	}

	if err := feed.WriteSnapshotFile(out, f); err != nil {
		log.Fatalf("write snapshot: %v", err)
	}
	logger.Info("snapshot written",
		slog.String("path", out),
		slog.Int("stops", len(f.Stops)),
		slog.Int("trips", len(f.Trips)),
		slog.Int("rejected", len(s.Rejected)))
}
