package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"train-positions/internal/gtfs"
)

// Wednesday; WK runs Monday to Friday.
var testDay = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return testDay.Add(time.Duration(sec * float64(time.Second)))
}

var weekdays = [7]bool{false, true, true, true, true, true, false}

// lineFeed has:
//   - T1 on a shaped east-west line A -> B -> C, departing A at 10:00:00,
//     dwelling at B 36090..36110 and arriving at C 36200;
//   - T2 without a shape from D to E, 1000 m north, 36000 -> 36100.
func lineFeed() *gtfs.Feed {
	f := &gtfs.Feed{
		Stops: []gtfs.Stop{
			{ID: "A", Name: "Plentzia", Lat: 43.26, Lon: -2.950},
			{ID: "B", Name: "Midway", Lat: 43.26, Lon: -2.945},
			{ID: "C", Name: "Etxebarri", Lat: 43.26, Lon: -2.940},
			{ID: "D", Name: "Bolueta", Lat: 43.30, Lon: -2.950},
			{ID: "E", Name: "Basauri", Lat: 43.30 + 1000/(gtfs.EarthRadiusMeters*3.141592653589793/180), Lon: -2.950},
		},
		Routes: []gtfs.Route{
			{ID: "L1", ShortName: "L1", Color: "#f14e2d", TextColor: "#ffffff"},
			{ID: "L2", ShortName: "L2", Color: "#000000", TextColor: "#ffffff"},
		},
		Trips: []gtfs.Trip{
			{
				ID: "T1", RouteID: "L1", ServiceID: "WK", ShapeID: "S1",
				StopTimes: []gtfs.StopTime{
					{StopID: "A", Sequence: 1, ArrivalSec: 36000, DepartureSec: 36000},
					{StopID: "B", Sequence: 2, ArrivalSec: 36090, DepartureSec: 36110},
					{StopID: "C", Sequence: 3, ArrivalSec: 36200, DepartureSec: 36200},
				},
			},
			{
				ID: "T2", RouteID: "L2", ServiceID: "WK", DirectionID: 1,
				StopTimes: []gtfs.StopTime{
					{StopID: "D", Sequence: 1, ArrivalSec: 36000, DepartureSec: 36000},
					{StopID: "E", Sequence: 2, ArrivalSec: 36100, DepartureSec: 36100},
				},
			},
		},
		Calendar: []gtfs.CalendarEntry{{ServiceID: "WK", Days: weekdays, StartDate: "20260101", EndDate: "20261231"}},
	}
	for i := 0; i <= 10; i++ {
		f.ShapePoints = append(f.ShapePoints, gtfs.RawShapePoint{ShapeID: "S1", Lat: 43.26, Lon: -2.950 + float64(i)*0.001, Sequence: i + 1})
	}
	return f
}

var lineCodes = map[string]string{"A": "PLE", "B": "MID", "C": "ETX"}

func newSchedule(t *testing.T, f *gtfs.Feed) *gtfs.Schedule {
	t.Helper()
	s, err := gtfs.NewSchedule(f, gtfs.Options{StationCodes: lineCodes})
	require.NoError(t, err)
	return s
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(newSchedule(t, lineFeed()), Options{})
}
