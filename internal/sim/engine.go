package sim

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"train-positions/internal/gtfs"
	"train-positions/internal/logging"
)

// RunningGraceSeconds widens a trip's [first departure, last arrival] window
// when deciding which trips are candidates for ticks and reconciliation.
const RunningGraceSeconds = 300

type Options struct {
	Logger  *slog.Logger
	Matcher *DestinationMatcher
}

// Engine owns the schedule and the two mutable stores (offsets and smoothing
// state). All exported methods are safe for concurrent use; the reconciler's
// write and the tick's read-then-write are serialised by one mutex.
type Engine struct {
	sched   *gtfs.Schedule
	matcher *DestinationMatcher
	logger  *slog.Logger

	mu        sync.Mutex
	offsets   map[string]int // tripID -> seconds late (negative = early)
	lengths   map[string]int // tripID -> last reported vehicle length
	smoothing map[string]*SmoothingState
	disposed  bool
}

func New(s *gtfs.Schedule, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Matcher == nil {
		opts.Matcher = NewDestinationMatcher(DefaultAliases)
	}
	return &Engine{
		sched:     s,
		matcher:   opts.Matcher,
		logger:    opts.Logger,
		offsets:   make(map[string]int),
		lengths:   make(map[string]int),
		smoothing: make(map[string]*SmoothingState),
	}
}

func (e *Engine) Schedule() *gtfs.Schedule { return e.sched }

// candidate is one trip instance that may be running now. schedNow is the
// wall clock expressed in that instance's service-day schedule domain.
type candidate struct {
	trip     *gtfs.Trip
	schedNow float64
	midnight time.Time
}

// candidates returns trips of today's services, plus yesterday's services
// shifted by 24h so that trips past midnight keep running, whose offset-
// adjusted time falls inside their grace-widened window. Callers hold e.mu.
func (e *Engine) candidates(now time.Time) []candidate {
	today := gtfs.Midnight(now)
	yesterday := gtfs.Midnight(today.Add(-12 * time.Hour))
	days := []struct {
		midnight time.Time
		services map[string]struct{}
	}{
		{today, e.sched.ActiveServicesOn(today)},
		{yesterday, e.sched.ActiveServicesOn(yesterday)},
	}
	var out []candidate
	seen := make(map[string]bool)
	for _, day := range days {
		if len(day.services) == 0 {
			continue
		}
		schedNow := now.Sub(day.midnight).Seconds()
		for _, id := range e.sched.TripIDs {
			if seen[id] {
				continue
			}
			trip := e.sched.Trips[id]
			if _, ok := day.services[trip.ServiceID]; !ok {
				continue
			}
			t := schedNow - float64(e.offsets[id])
			first, last := trip.FirstStop(), trip.LastStop()
			if t < float64(first.DepartureSec-RunningGraceSeconds) || t > float64(last.ArrivalSec+RunningGraceSeconds) {
				continue
			}
			seen[id] = true
			out = append(out, candidate{trip: trip, schedNow: schedNow, midnight: day.midnight})
		}
	}
	return out
}

// Tick advances every candidate trip through the Smoothing Controller and
// the Position Interpolator and returns snapshots for trips that are
// dwelling or moving. State of trips that are no longer candidates is dropped.
func (e *Engine) Tick(now time.Time) []TrainSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil
	}

	cands := e.candidates(now)
	active := make(map[string]bool, len(cands))
	snaps := make([]TrainSnapshot, 0, len(cands))
	for _, c := range cands {
		id := c.trip.ID
		active[id] = true
		target := c.schedNow - float64(e.offsets[id])

		st, ok := e.smoothing[id]
		final := target
		if ok {
			final = st.Advance(target, now)
		} else {
			st = &SmoothingState{}
			e.smoothing[id] = st
			e.logger.Debug("trip started", slog.String("trip", id), slog.String("route", c.trip.RouteID))
		}

		pos := Interpolate(e.sched, c.trip, final)
		nextArr, hasNext := 0.0, false
		if pos.Next >= 0 {
			nextArr, hasNext = float64(c.trip.StopTimes[pos.Next].ArrivalSec), true
		}
		st.Record(final, now, pos.Status, nextArr, hasNext)

		if pos.Status == NotRunning {
			continue
		}
		snaps = append(snaps, e.snapshot(c, pos, final, now))
	}

	for id := range e.smoothing {
		if !active[id] {
			delete(e.smoothing, id)
			e.logger.Debug("trip finished", slog.String("trip", id))
		}
	}
	for id := range e.offsets {
		if !active[id] {
			delete(e.offsets, id)
			delete(e.lengths, id)
		}
	}
	return snaps
}

// effectiveTime is the schedule time the trip is currently rendered at.
// Callers hold e.mu.
func (e *Engine) effectiveTime(c candidate) float64 {
	if st, ok := e.smoothing[c.trip.ID]; ok {
		return st.LastAdjusted
	}
	return c.schedNow - float64(e.offsets[c.trip.ID])
}

// nextStopIndex is the stop a candidate is heading to: the next stop of the
// position state machine, or the first stop while waiting to depart.
func (e *Engine) nextStopIndex(c candidate, t float64) int {
	pos := Interpolate(e.sched, c.trip, t)
	if pos.Status != NotRunning {
		return pos.Next
	}
	if t < float64(c.trip.StopTimes[0].DepartureSec) {
		return 0
	}
	return -1
}

// StationCodes lists the distinct live-feed codes of the next stops of all
// candidate trips, the set the reconciler needs fetched.
func (e *Engine) StationCodes(now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil
	}
	seen := make(map[string]bool)
	var codes []string
	for _, c := range e.candidates(now) {
		next := e.nextStopIndex(c, e.effectiveTime(c))
		if next < 0 {
			continue
		}
		stop, ok := e.sched.Stops[c.trip.StopTimes[next].StopID]
		if !ok || stop.StationCode == "" || seen[stop.StationCode] {
			continue
		}
		seen[stop.StationCode] = true
		codes = append(codes, stop.StationCode)
	}
	sort.Strings(codes)
	return codes
}

// Offset returns the stored offset for a trip.
func (e *Engine) Offset(tripID string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.offsets[tripID]
	return v, ok
}

// Offsets returns a copy of the offset store.
func (e *Engine) Offsets() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.offsets))
	for k, v := range e.offsets {
		out[k] = v
	}
	return out
}

// Dispose drops all derived state. Later calls to Tick, StationCodes and
// Reconcile are no-ops.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	e.offsets = make(map[string]int)
	e.lengths = make(map[string]int)
	e.smoothing = make(map[string]*SmoothingState)
}
