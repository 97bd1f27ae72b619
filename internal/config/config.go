package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"train-positions/internal/logging"
)

type Config struct {
	// ScheduleSource is a GTFS zip path/URL or a .json snapshot. Empty means
	// the schedule is read from Postgres.
	ScheduleSource string
	DatabaseURL    string
	City           string

	TickInterval      time.Duration
	ReconcileInterval time.Duration

	LiveFeedURL    string
	LiveBatchSize  int
	LiveBatchPause time.Duration
	LiveTimeout    time.Duration

	UpcomingWindow time.Duration

	HTTPAddr    string
	MetricsAddr string

	NATSURL           string
	NATSSubjectPrefix string

	Location *time.Location
	LogLevel slog.Level

	MatchingConfigPath string
	Matching           *Matching
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.ScheduleSource = strings.TrimSpace(os.Getenv("SCHEDULE_SOURCE"))
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))
	if cfg.ScheduleSource == "" {
		if cfg.DatabaseURL, err = databaseURL(cfg.City); err != nil {
			return nil, err
		}
	}

	if cfg.TickInterval, err = durationEnv("TICK_INTERVAL_MS", time.Millisecond, time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL_SEC", time.Second, 10*time.Second); err != nil {
		return nil, err
	}

	// Live feed endpoint template; empty disables reconciliation.
	cfg.LiveFeedURL = strings.TrimSpace(os.Getenv("LIVE_FEED_URL"))
	if cfg.LiveFeedURL != "" && !strings.Contains(cfg.LiveFeedURL, "{code}") {
		return nil, fmt.Errorf("invalid LIVE_FEED_URL: %q (missing {code})", cfg.LiveFeedURL)
	}
	if v := os.Getenv("LIVE_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid LIVE_BATCH_SIZE: %q", v)
		}
		cfg.LiveBatchSize = n
	} else {
		cfg.LiveBatchSize = 5
	}
	if cfg.LiveBatchPause, err = durationEnv("LIVE_BATCH_PAUSE_MS", time.Millisecond, 250*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.LiveTimeout, err = durationEnv("LIVE_TIMEOUT_MS", time.Millisecond, 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpcomingWindow, err = durationEnv("UPCOMING_WINDOW_MIN", time.Minute, 45*time.Minute); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty disables publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "trains")

	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	cfg.LogLevel = logging.ParseLevel(os.Getenv("LOG_LEVEL"))

	cfg.MatchingConfigPath = os.Getenv("MATCHING_CONFIG")
	if cfg.Matching, err = LoadMatching(cfg.MatchingConfigPath); err != nil {
		return nil, err
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL(city string) (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && city != "" {
		db = "postgres"
	}
	if db == "" {
		return "", errors.New("SCHEDULE_SOURCE, PGDATABASE or DATABASE_URL must be set")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

// durationEnv reads a positive integer count of unit from key.
func durationEnv(key string, unit, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
