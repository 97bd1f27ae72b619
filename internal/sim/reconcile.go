package sim

import (
	"log/slog"
	"math"
	"time"

	"train-positions/internal/livefeed"
)

// MaxReconcileDiffSeconds rejects live entries whose predicted arrival is
// further than this from the simulated one.
const MaxReconcileDiffSeconds = 900

type ReconcileStats struct {
	Candidates int // running trips with a next stop
	NoCode     int // next stop has no live station code
	Updated    int
	Unmatched  int
}

// Reconcile matches live platform entries against the next stop of every
// running trip and overwrites the stored offset with the best match. Trips
// without a match keep their previous offset.
func (e *Engine) Reconcile(arrivals map[string][]livefeed.Entry, now time.Time) ReconcileStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	var stats ReconcileStats
	if e.disposed {
		return stats
	}

	for _, c := range e.candidates(now) {
		next := e.nextStopIndex(c, e.effectiveTime(c))
		if next < 0 {
			continue
		}
		stats.Candidates++
		st := c.trip.StopTimes[next]
		stop, ok := e.sched.Stops[st.StopID]
		if !ok || stop.StationCode == "" {
			stats.NoCode++
			continue
		}
		dest := e.sched.Destination(c.trip)
		if dest == nil {
			stats.Unmatched++
			continue
		}

		sched := float64(st.ArrivalSec)
		current := e.offsets[c.trip.ID]
		simArrival := sched + float64(current)
		bestDiff := math.Inf(1)
		var best *livefeed.Entry
		for i := range arrivals[stop.StationCode] {
			entry := &arrivals[stop.StationCode][i]
			if !e.matcher.Match(entry.Destination, dest.Name) {
				continue
			}
			apiArrival := c.schedNow + float64(entry.Minutes*60)
			diff := math.Abs(apiArrival - simArrival)
			if diff > MaxReconcileDiffSeconds {
				continue
			}
			if diff < bestDiff {
				bestDiff, best = diff, entry
			}
		}
		if best == nil {
			stats.Unmatched++
			continue
		}

		offset := int(math.Round(c.schedNow + float64(best.Minutes*60) - sched))
		e.offsets[c.trip.ID] = offset
		if best.Length != nil {
			e.lengths[c.trip.ID] = *best.Length
		}
		stats.Updated++
		if offset != current {
			e.logger.Debug("offset updated",
				slog.String("trip", c.trip.ID),
				slog.String("station", stop.StationCode),
				slog.Int("previous", current),
				slog.Int("offset", offset))
		}
	}
	return stats
}
