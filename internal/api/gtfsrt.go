package api

import (
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"train-positions/internal/logging"
	"train-positions/internal/sim"
)

func ptr[T any](v T) *T { return &v }

// VehiclePositions renders snapshots as a GTFS-realtime FeedMessage with one
// VehiclePosition entity per train.
func VehiclePositions(snaps []sim.TrainSnapshot, at time.Time) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: ptr("2.0"),
			Incrementality:      ptr(gtfs.FeedHeader_FULL_DATASET),
			Timestamp:           ptr(uint64(at.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(snaps)),
	}
	for _, s := range snaps {
		msg.Entity = append(msg.Entity, vehicleEntity(s))
	}
	return msg
}

func vehicleEntity(s sim.TrainSnapshot) *gtfs.FeedEntity {
	vp := &gtfs.VehiclePosition{
		Trip: &gtfs.TripDescriptor{
			TripId:      ptr(s.TripID),
			RouteId:     ptr(s.RouteID),
			DirectionId: ptr(uint32(s.DirectionID)),
		},
		Vehicle: &gtfs.VehicleDescriptor{
			Id: ptr(s.TripID),
		},
		Position: &gtfs.Position{
			Latitude:  ptr(float32(s.Lat)),
			Longitude: ptr(float32(s.Lon)),
			Bearing:   ptr(float32(s.Bearing)),
		},
		Timestamp: ptr(uint64(s.Timestamp.Unix())),
	}
	if s.ServiceNumber != "" {
		vp.Vehicle.Label = ptr(s.ServiceNumber)
	}
	switch {
	case s.Status == sim.Dwelling && s.CurrentStop != nil:
		vp.CurrentStatus = ptr(gtfs.VehiclePosition_STOPPED_AT)
		vp.StopId = ptr(s.CurrentStop.ID)
	case s.NextStop != nil:
		vp.CurrentStatus = ptr(gtfs.VehiclePosition_IN_TRANSIT_TO)
		vp.StopId = ptr(s.NextStop.ID)
	}
	return &gtfs.FeedEntity{Id: ptr(s.TripID), Vehicle: vp}
}

func (s *Server) vehiclePositionsHandler(w http.ResponseWriter, r *http.Request) {
	snaps, at := s.mgr.Load().Latest()
	msg := VehiclePositions(snaps, at)

	var (
		data []byte
		err  error
	)
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		data, err = prototext.MarshalOptions{Multiline: true}.Marshal(msg)
	} else {
		w.Header().Set("Content-Type", "application/x-protobuf")
		data, err = proto.Marshal(msg)
	}
	if err != nil {
		logging.LogError(s.logger, "marshal vehicle positions", err)
		s.writeError(w, http.StatusInternalServerError, "marshal failed")
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.LogError(s.logger, "write vehicle positions", err)
	}
}
