package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	model "train-positions/internal/gtfs"
	mmetrics "train-positions/internal/metrics"
	"train-positions/internal/sim"
)

var now = time.Date(2026, 10, 14, 10, 0, 50, 0, time.UTC)

func testFeed() *model.Feed {
	f := &model.Feed{
		Stops: []model.Stop{
			{ID: "A", Name: "Plentzia", Lat: 43.26, Lon: -2.950},
			{ID: "B", Name: "Etxebarri", Lat: 43.26, Lon: -2.940},
		},
		Routes: []model.Route{{ID: "L1", ShortName: "L1", Color: "#f14e2d"}},
		Trips: []model.Trip{{
			ID: "T1", RouteID: "L1", ServiceID: "WK", ShapeID: "S1", ServiceNumber: "2502",
			StopTimes: []model.StopTime{
				{StopID: "A", Sequence: 1, ArrivalSec: 36000, DepartureSec: 36000},
				{StopID: "B", Sequence: 2, ArrivalSec: 36100, DepartureSec: 36100},
			},
		}},
		Calendar: []model.CalendarEntry{{ServiceID: "WK", Days: [7]bool{false, true, true, true, true, true, false}, StartDate: "20260101", EndDate: "20261231"}},
		ShapePoints: []model.RawShapePoint{
			{ShapeID: "S1", Lat: 43.26, Lon: -2.950, Sequence: 1},
			{ShapeID: "S1", Lat: 43.26, Lon: -2.940, Sequence: 2},
		},
	}
	return f
}

func newTestServer(t *testing.T) (*Server, *mmetrics.Collector) {
	t.Helper()
	s, err := model.NewSchedule(testFeed(), model.Options{})
	require.NoError(t, err)
	mgr := sim.NewManager(sim.New(s, sim.Options{}), nil, nil, sim.ManagerConfig{
		Location: time.UTC,
		Clock:    func() time.Time { return now },
	}, nil)
	mgr.TickOnce()
	col := mmetrics.NewCollector(time.Second, 10*time.Second)
	return NewServer(mgr, 0, nil, col), col
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTrainsHandler(t *testing.T) {
	srv, col := newTestServer(t)
	rec := get(t, srv, "/api/trains")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Count  int `json:"count"`
		Trains []struct {
			TripID        string `json:"tripId"`
			Status        string `json:"status"`
			ServiceNumber string `json:"serviceNumber"`
			NextStop      struct {
				ID string `json:"id"`
			} `json:"nextStop"`
		} `json:"trains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "T1", body.Trains[0].TripID)
	assert.Equal(t, "moving", body.Trains[0].Status)
	assert.Equal(t, "2502", body.Trains[0].ServiceNumber)
	assert.Equal(t, "B", body.Trains[0].NextStop.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(col.HTTPRequests.WithLabelValues("/api/trains", "200")))
}

func TestUpcomingHandler(t *testing.T) {
	srv, col := newTestServer(t)

	rec := get(t, srv, "/api/stops/B/upcoming")
	require.Equal(t, http.StatusOK, rec.Code)
	var got sim.Departures
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "B", got.StopID)
	assert.True(t, got.IsTerminal)
	require.Len(t, got.Trains, 1)
	assert.Equal(t, "T1", got.Trains[0].TripID)
	assert.Equal(t, 0, got.Trains[0].MinutesUntil)

	rec = get(t, srv, "/api/stops/B/upcoming?window=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = get(t, srv, "/api/stops/B/upcoming?window=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = get(t, srv, "/api/stops/NOPE/upcoming")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown stop")
	assert.Equal(t, 1.0, testutil.ToFloat64(col.HTTPRequests.WithLabelValues("/api/stops/:id/upcoming", "404")))
}

func TestVehiclePositionsHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/gtfs-rt/vehicle-positions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-protobuf", rec.Header().Get("Content-Type"))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	var msg gtfs.FeedMessage
	require.NoError(t, proto.Unmarshal(body, &msg))
	assert.Equal(t, "2.0", msg.GetHeader().GetGtfsRealtimeVersion())
	assert.Equal(t, uint64(now.Unix()), msg.GetHeader().GetTimestamp())
	require.Len(t, msg.GetEntity(), 1)
	vp := msg.GetEntity()[0].GetVehicle()
	assert.Equal(t, "T1", vp.GetTrip().GetTripId())
	assert.Equal(t, "L1", vp.GetTrip().GetRouteId())
	assert.Equal(t, "2502", vp.GetVehicle().GetLabel())
	assert.Equal(t, gtfs.VehiclePosition_IN_TRANSIT_TO, vp.GetCurrentStatus())
	assert.Equal(t, "B", vp.GetStopId())
	assert.InDelta(t, -2.945, vp.GetPosition().GetLongitude(), 1e-4)

	rec = get(t, srv, "/gtfs-rt/vehicle-positions?format=text")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), `trip_id:`)
}

func TestVehiclePositionsDwelling(t *testing.T) {
	snap := sim.TrainSnapshot{
		TripID:      "T9",
		RouteID:     "L2",
		Status:      sim.Dwelling,
		CurrentStop: &sim.StopRef{ID: "X"},
		NextStop:    &sim.StopRef{ID: "Y"},
		Timestamp:   now,
	}
	msg := VehiclePositions([]sim.TrainSnapshot{snap}, now)
	vp := msg.GetEntity()[0].GetVehicle()
	assert.Equal(t, gtfs.VehiclePosition_STOPPED_AT, vp.GetCurrentStatus())
	assert.Equal(t, "X", vp.GetStopId())
	assert.False(t, vp.GetVehicle().Label != nil)
}

func TestHealthAndNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetManager(t *testing.T) {
	srv, _ := newTestServer(t)
	s, err := model.NewSchedule(testFeed(), model.Options{})
	require.NoError(t, err)
	fresh := sim.NewManager(sim.New(s, sim.Options{}), nil, nil, sim.ManagerConfig{Location: time.UTC}, nil)
	srv.SetManager(fresh)

	rec := get(t, srv, "/api/trains")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}
