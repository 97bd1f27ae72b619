package sim

import (
	"math"
	"time"
)

// StopRef names a stop on a trip with its scheduled time and the time it is
// expected at once the trip's offset is applied.
type StopRef struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ScheduledSeconds int       `json:"scheduledSeconds"`
	Expected         time.Time `json:"expected"`
}

// TrainSnapshot is the per-tick, read-only view of one running trip.
type TrainSnapshot struct {
	TripID         string   `json:"tripId"`
	RouteID        string   `json:"routeId"`
	RouteShortName string   `json:"routeShortName,omitempty"`
	RouteColor     string   `json:"routeColor,omitempty"`
	ServiceNumber  string   `json:"serviceNumber,omitempty"`
	DirectionID    int      `json:"directionId"`
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	Bearing        float64  `json:"bearing"`
	Status         Status   `json:"status"`
	CurrentStop    *StopRef `json:"currentStop,omitempty"`
	NextStop       *StopRef `json:"nextStop,omitempty"`
	Destination    *StopRef `json:"destination,omitempty"`
	OffsetSeconds  int      `json:"offsetSeconds"`
	VehicleLength  *int     `json:"vehicleLength,omitempty"`
	// ScheduleTime is the smoothed schedule-domain time the position was computed at.
	ScheduleTime  float64   `json:"scheduleTime"`
	DistanceAlong *float64  `json:"distanceAlong,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Delay returns the offset rounded to whole minutes.
func (s TrainSnapshot) Delay() int {
	return int(math.Round(float64(s.OffsetSeconds) / 60))
}

// snapshot assembles the output for one candidate. Callers hold e.mu.
func (e *Engine) snapshot(c candidate, pos Position, final float64, now time.Time) TrainSnapshot {
	trip := c.trip
	offset := e.offsets[trip.ID]
	snap := TrainSnapshot{
		TripID:        trip.ID,
		RouteID:       trip.RouteID,
		ServiceNumber: trip.ServiceNumber,
		DirectionID:   trip.DirectionID,
		Lat:           pos.Lat,
		Lon:           pos.Lon,
		Bearing:       pos.Bearing,
		Status:        pos.Status,
		OffsetSeconds: offset,
		ScheduleTime:  final,
		DistanceAlong: pos.DistanceAlong,
		Timestamp:     now,
	}
	if r, ok := e.sched.Routes[trip.RouteID]; ok {
		snap.RouteShortName = r.ShortName
		snap.RouteColor = r.Color
	}
	if l, ok := e.lengths[trip.ID]; ok {
		v := l
		snap.VehicleLength = &v
	}

	ref := func(i int, useDeparture bool) *StopRef {
		st := trip.StopTimes[i]
		sec := st.ArrivalSec
		if useDeparture {
			sec = st.DepartureSec
		}
		return &StopRef{
			ID:               st.StopID,
			Name:             e.sched.StopName(st.StopID),
			ScheduledSeconds: sec,
			Expected:         c.midnight.Add(time.Duration(sec+offset) * time.Second),
		}
	}
	if pos.Current >= 0 {
		snap.CurrentStop = ref(pos.Current, true)
	}
	if pos.Next >= 0 {
		snap.NextStop = ref(pos.Next, false)
	}
	snap.Destination = ref(len(trip.StopTimes)-1, false)
	return snap
}
