package sim

import (
	"fmt"

	"train-positions/internal/gtfs"
)

type Status int

const (
	NotRunning Status = iota
	Dwelling
	Moving
)

func (s Status) String() string {
	switch s {
	case Dwelling:
		return "dwelling"
	case Moving:
		return "moving"
	default:
		return "not_running"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "dwelling":
		*s = Dwelling
	case "moving":
		*s = Moving
	case "not_running":
		*s = NotRunning
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Position is the interpolated state of one trip at one schedule time.
type Position struct {
	Status  Status
	Lat     float64
	Lon     float64
	Bearing float64
	// Current is the stop dwelt at, or the stop last departed when moving.
	Current int
	// Next is the index of the next stop, -1 at the end of the trip.
	Next int
	// Progress is the 0..1 fraction of the current inter-stop leg.
	Progress float64
	// DistanceAlong is the along-shape distance when the shape path was used.
	DistanceAlong *float64
	// OnShape reports whether the position followed the route polyline.
	OnShape bool
}

// Interpolate evaluates the trip's state machine at schedule time t (seconds
// from midnight, post-offset). Stop-time pairs are scanned in sequence order
// and the first matching state wins.
func Interpolate(s *gtfs.Schedule, trip *gtfs.Trip, t float64) Position {
	sts := trip.StopTimes
	for i := range sts {
		st := sts[i]
		if float64(st.ArrivalSec) <= t && t < float64(st.DepartureSec) {
			return dwelling(s, trip, i)
		}
		if i+1 < len(sts) && float64(st.DepartureSec) <= t && t < float64(sts[i+1].ArrivalSec) {
			return moving(s, trip, i, t)
		}
	}
	return Position{Status: NotRunning, Current: -1, Next: -1}
}

func dwelling(s *gtfs.Schedule, trip *gtfs.Trip, i int) Position {
	stop, ok := s.Stops[trip.StopTimes[i].StopID]
	if !ok {
		return Position{Status: NotRunning, Current: -1, Next: -1}
	}
	p := Position{Status: Dwelling, Lat: stop.Lat, Lon: stop.Lon, Current: i, Next: -1}
	if i+1 < len(trip.StopTimes) {
		p.Next = i + 1
		if next, ok := s.Stops[trip.StopTimes[i+1].StopID]; ok {
			p.Bearing = gtfs.Bearing(stop.Lat, stop.Lon, next.Lat, next.Lon)
		}
	}
	if d := trip.StopTimes[i].ShapeDistance; d != nil {
		v := *d
		p.DistanceAlong = &v
	}
	return p
}

func moving(s *gtfs.Schedule, trip *gtfs.Trip, i int, t float64) Position {
	a, b := trip.StopTimes[i], trip.StopTimes[i+1]
	stopA, okA := s.Stops[a.StopID]
	stopB, okB := s.Stops[b.StopID]
	if !okA || !okB {
		return Position{Status: NotRunning, Current: -1, Next: -1}
	}
	progress := 0.0
	if span := float64(b.ArrivalSec - a.DepartureSec); span > 0 {
		progress = (t - float64(a.DepartureSec)) / span
	}
	p := Position{Status: Moving, Current: i, Next: i + 1, Progress: progress}

	shape, hasShape := s.Shapes[trip.ShapeID]
	if hasShape && trip.ShapeID != "" && a.ShapeDistance != nil && b.ShapeDistance != nil {
		distA, distB := *a.ShapeDistance, *b.ShapeDistance
		target := distA + (distB-distA)*progress
		p.Lat, p.Lon = shape.PointAtDistance(target)
		p.DistanceAlong = &target
		p.OnShape = true
		// heading toward a point a little further along the leg
		ahead := target + 10
		if distB < distA {
			ahead = target - 10
		}
		if (distB >= distA && ahead > distB) || (distB < distA && ahead < distB) {
			ahead = distB
		}
		aLat, aLon := shape.PointAtDistance(ahead)
		if aLat == p.Lat && aLon == p.Lon {
			p.Bearing = gtfs.Bearing(stopA.Lat, stopA.Lon, stopB.Lat, stopB.Lon)
		} else {
			p.Bearing = gtfs.Bearing(p.Lat, p.Lon, aLat, aLon)
		}
		return p
	}

	p.Lat = stopA.Lat + (stopB.Lat-stopA.Lat)*progress
	p.Lon = stopA.Lon + (stopB.Lon-stopA.Lon)*progress
	p.Bearing = gtfs.Bearing(stopA.Lat, stopA.Lon, stopB.Lat, stopB.Lon)
	return p
}
