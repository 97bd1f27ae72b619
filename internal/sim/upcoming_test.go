package sim

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-positions/internal/gtfs"
)

func TestUpcomingIntermediateStop(t *testing.T) {
	e := newEngine(t)
	got := e.Upcoming("B", at(36000), 0)
	assert.False(t, got.IsTerminal)
	require.Len(t, got.Trains, 1)
	d := got.Trains[0]
	assert.Equal(t, "T1", d.TripID)
	assert.Equal(t, "Etxebarri", d.Destination)
	assert.Equal(t, 36090, d.Scheduled)
	assert.Equal(t, at(36090), d.Expected)
	assert.Equal(t, 1, d.MinutesUntil)
	assert.False(t, d.Departing)
	assert.Empty(t, d.Delay)

	e.offsets["T1"] = 125
	e.lengths["T1"] = 4
	d = e.Upcoming("B", at(36000), 0).Trains[0]
	assert.Equal(t, at(36215), d.Expected)
	assert.Equal(t, 3, d.MinutesUntil)
	assert.Equal(t, "+2 min", d.Delay)
	require.NotNil(t, d.VehicleLength)
	assert.Equal(t, 4, *d.VehicleLength)

	e.offsets["T1"] = -70
	assert.Equal(t, "-1 min", e.Upcoming("B", at(35900), 0).Trains[0].Delay)
}

func TestUpcomingWindow(t *testing.T) {
	e := newEngine(t)
	assert.Empty(t, e.Upcoming("B", at(36000), time.Minute).Trains)
	assert.Len(t, e.Upcoming("B", at(36000), 2*time.Minute).Trains, 1)
	// already passed
	assert.Empty(t, e.Upcoming("B", at(36091), time.Hour).Trains)
	assert.Empty(t, e.Upcoming("UNKNOWN", at(36000), time.Hour).Trains)
}

func TestUpcomingTerminalRatio(t *testing.T) {
	f := &gtfs.Feed{
		Stops: []gtfs.Stop{
			{ID: "X", Name: "Terminal", Lat: 43.30, Lon: -2.90},
			{ID: "Y", Name: "Origin", Lat: 43.31, Lon: -2.90},
			{ID: "Z", Name: "Elsewhere", Lat: 43.32, Lon: -2.90},
		},
		Routes:      []gtfs.Route{{ID: "R"}},
		Calendar:    []gtfs.CalendarEntry{{ServiceID: "WK", Days: weekdays, StartDate: "20260101", EndDate: "20261231"}},
		ShapePoints: []gtfs.RawShapePoint{{ShapeID: "S", Lat: 43.30, Lon: -2.90, Sequence: 1}},
	}
	for i := 0; i < 40; i++ {
		dep := 36000 + i*60
		trip := gtfs.Trip{ID: fmt.Sprintf("T%02d", i), RouteID: "R", ServiceID: "WK"}
		switch {
		case i < 15:
			trip.StopTimes = []gtfs.StopTime{
				{StopID: "Y", Sequence: 1, ArrivalSec: dep, DepartureSec: dep},
				{StopID: "X", Sequence: 2, ArrivalSec: dep + 300, DepartureSec: dep + 300},
			}
		case i == 15:
			// passes through X without ending there
			trip.StopTimes = []gtfs.StopTime{
				{StopID: "Y", Sequence: 1, ArrivalSec: dep, DepartureSec: dep},
				{StopID: "X", Sequence: 2, ArrivalSec: dep + 300, DepartureSec: dep + 330},
				{StopID: "Z", Sequence: 3, ArrivalSec: dep + 600, DepartureSec: dep + 600},
			}
		default:
			trip.StopTimes = []gtfs.StopTime{
				{StopID: "Y", Sequence: 1, ArrivalSec: dep, DepartureSec: dep},
				{StopID: "Z", Sequence: 2, ArrivalSec: dep + 600, DepartureSec: dep + 600},
			}
		}
		f.Trips = append(f.Trips, trip)
	}
	e := New(newSchedule(t, f), Options{})

	got := e.Upcoming("X", at(36000), 2*time.Hour)
	assert.True(t, got.IsTerminal, "15/40 = 0.375 > 0.3")
	require.Len(t, got.Trains, 15)
	for i, d := range got.Trains {
		assert.Equal(t, fmt.Sprintf("T%02d", i), d.TripID, "sorted by expected time")
		assert.Equal(t, "Terminal", d.Destination)
	}

	origin := e.Upcoming("Y", at(36000), 2*time.Hour)
	assert.False(t, origin.IsTerminal)
	assert.Len(t, origin.Trains, 40)
}

func TestUpcomingTerminalLoop(t *testing.T) {
	f := lineFeed()
	f.Trips = append(f.Trips, gtfs.Trip{
		ID: "LOOP", RouteID: "L1", ServiceID: "WK",
		StopTimes: []gtfs.StopTime{
			{StopID: "C", Sequence: 1, ArrivalSec: 36300, DepartureSec: 36320},
			{StopID: "B", Sequence: 2, ArrivalSec: 36400, DepartureSec: 36400},
			{StopID: "C", Sequence: 3, ArrivalSec: 36500, DepartureSec: 36500},
		},
	})
	e := New(newSchedule(t, f), Options{})

	got := e.Upcoming("C", at(36000), time.Hour)
	// T1 and LOOP end at C out of three trips
	assert.True(t, got.IsTerminal)
	require.Len(t, got.Trains, 2)
	assert.Equal(t, "T1", got.Trains[0].TripID)
	assert.Equal(t, 36200, got.Trains[0].Scheduled)
	assert.False(t, got.Trains[0].Departing)
	// a loop starting and ending at the terminal is shown departing
	assert.Equal(t, "LOOP", got.Trains[1].TripID)
	assert.Equal(t, 36320, got.Trains[1].Scheduled)
	assert.True(t, got.Trains[1].Departing)
}

func TestUpcomingIncludesChildStops(t *testing.T) {
	f := lineFeed()
	f.Stops = append(f.Stops, gtfs.Stop{ID: "B-STATION", Name: "Midway", Lat: 43.26, Lon: -2.945})
	f.Stops[1].ParentID = "B-STATION"
	e := New(newSchedule(t, f), Options{})

	got := e.Upcoming("B-STATION", at(36000), 0)
	require.Len(t, got.Trains, 1)
	assert.Equal(t, "T1", got.Trains[0].TripID)
}
