package sim

import "time"

const (
	// MinSpeedMoving is the slowest a moving train's schedule clock may run
	// relative to wall-clock time; it keeps trains progressing toward the
	// next stop even while delay grows.
	MinSpeedMoving = 0.5
	// MaxSpeed bounds catch-up when delay shrinks.
	MaxSpeed = 3.0
)

// SmoothingState is the per-trip memory of the Smoothing Controller.
type SmoothingState struct {
	LastAdjusted    float64
	LastWallClock   time.Time
	LastStatus      Status
	NextStopArrival float64
	HasNextStop     bool
}

// Advance returns the schedule time to render at wall-clock now, moving from
// LastAdjusted toward target no slower than the minimum speed and no faster
// than MaxSpeed. A moving train is never advanced past its next stop's
// arrival so it cannot skip the dwell there.
func (st *SmoothingState) Advance(target float64, now time.Time) float64 {
	elapsed := now.Sub(st.LastWallClock).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	minSpeed := MinSpeedMoving
	if st.LastStatus == Dwelling {
		minSpeed = 0
	}
	lo, hi := elapsed*minSpeed, elapsed*MaxSpeed
	advance := target - st.LastAdjusted
	if advance < lo {
		advance = lo
	}
	if advance > hi {
		advance = hi
	}
	final := st.LastAdjusted + advance
	if st.LastStatus == Moving && st.HasNextStop && final > st.NextStopArrival && st.NextStopArrival >= st.LastAdjusted {
		final = st.NextStopArrival
	}
	return final
}

// Record stores the outcome of a tick.
func (st *SmoothingState) Record(final float64, now time.Time, status Status, nextArrival float64, hasNext bool) {
	st.LastAdjusted = final
	st.LastWallClock = now
	st.LastStatus = status
	st.NextStopArrival = nextArrival
	st.HasNextStop = hasNext && status == Moving
}
