package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"train-positions/internal/livefeed"
	"train-positions/internal/logging"
	mmetrics "train-positions/internal/metrics"
)

// Publisher receives every snapshot produced by a tick.
type Publisher interface {
	PublishSnapshot(s TrainSnapshot) error
}

// LiveSource fetches live platform entries keyed by station code. Stations
// that failed are simply absent from the result.
type LiveSource interface {
	FetchAll(ctx context.Context, codes []string) map[string][]livefeed.Entry
}

type ManagerConfig struct {
	TickInterval      time.Duration
	ReconcileInterval time.Duration
	Location          *time.Location
	Logger            *slog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Manager drives an Engine: a position tick at TickInterval and, when a live
// source is configured, a reconciliation cycle at ReconcileInterval. The two
// loops run independently so a slow live feed never delays ticks.
type Manager struct {
	engine  *Engine
	pub     Publisher
	live    LiveSource
	cfg     ManagerConfig
	metrics *mmetrics.Collector
	logger  *slog.Logger

	mu       sync.RWMutex
	latest   []TrainSnapshot
	lastTick time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(engine *Engine, pub Publisher, live LiveSource, cfg ManagerConfig, metrics *mmetrics.Collector) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		engine:  engine,
		pub:     pub,
		live:    live,
		cfg:     cfg,
		metrics: metrics,
		logger:  cfg.Logger,
	}
}

func (m *Manager) Engine() *Engine { return m.engine }

func (m *Manager) now() time.Time { return m.cfg.Clock().In(m.cfg.Location) }

// Now is the manager's clock in the schedule's time zone.
func (m *Manager) Now() time.Time { return m.now() }

// Start launches the loops. It returns immediately; call Stop to end them.
func (m *Manager) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.TickOnce()
		ticker := time.NewTicker(m.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.TickOnce()
			}
		}
	}()

	if m.live == nil {
		m.logger.Info("no live source configured, reconciliation disabled")
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.ReconcileOnce(ctx)
		ticker := time.NewTicker(m.cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReconcileOnce(ctx)
			}
		}
	}()
}

// TickOnce runs one position tick, caches and publishes its snapshots.
func (m *Manager) TickOnce() []TrainSnapshot {
	start := time.Now()
	now := m.now()
	snaps := m.engine.Tick(now)

	m.mu.Lock()
	m.latest = snaps
	m.lastTick = now
	m.mu.Unlock()

	if m.pub != nil {
		for _, s := range snaps {
			if err := m.pub.PublishSnapshot(s); err != nil {
				logging.LogError(m.logger, "publish snapshot", err, slog.String("trip", s.TripID))
			}
		}
	}
	if m.metrics != nil {
		m.metrics.ObserveTick(time.Since(start), statusCounts(snaps))
	}
	return snaps
}

// ReconcileOnce fetches live data for the next stops of running trips and
// applies it. The fetch happens without holding the engine lock.
func (m *Manager) ReconcileOnce(ctx context.Context) ReconcileStats {
	if m.live == nil {
		return ReconcileStats{}
	}
	start := time.Now()
	codes := m.engine.StationCodes(m.now())
	if len(codes) == 0 {
		return ReconcileStats{}
	}
	arrivals := m.live.FetchAll(ctx, codes)
	if ctx.Err() != nil {
		return ReconcileStats{}
	}
	stats := m.engine.Reconcile(arrivals, m.now())

	logging.LogOperation(m.logger, "reconcile",
		slog.Duration("duration", time.Since(start)),
		slog.Int("stations", len(codes)),
		slog.Int("stations_ok", len(arrivals)),
		slog.Int("candidates", stats.Candidates),
		slog.Int("updated", stats.Updated),
		slog.Int("unmatched", stats.Unmatched),
		slog.Int("no_code", stats.NoCode))
	if m.metrics != nil {
		m.metrics.ObserveReconcile(time.Since(start), stats.Updated, stats.Unmatched, stats.NoCode)
	}
	return stats
}

// Latest returns the snapshots of the most recent tick and when it ran.
func (m *Manager) Latest() ([]TrainSnapshot, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TrainSnapshot, len(m.latest))
	copy(out, m.latest)
	return out, m.lastTick
}

// Stop ends both loops, waits for them and disposes the engine.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.engine.Dispose()
}

func statusCounts(snaps []TrainSnapshot) map[string]int {
	out := map[string]int{Dwelling.String(): 0, Moving.String(): 0}
	for _, s := range snaps {
		out[s.Status.String()]++
	}
	return out
}
