// Package feed loads the static schedule from a GTFS zip archive or from a
// precomputed JSON snapshot.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/jamespfennell/gtfs"

	model "train-positions/internal/gtfs"
)

// Load reads the schedule from source: a .json snapshot, or a GTFS zip given
// as a local path or http(s) URL.
func Load(ctx context.Context, source string) (*model.Feed, error) {
	if strings.HasSuffix(strings.ToLower(source), ".json") {
		return ReadSnapshotFile(source)
	}
	b, err := readSource(ctx, source)
	if err != nil {
		return nil, err
	}
	return ParseZip(b)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func readSource(ctx context.Context, source string) ([]byte, error) {
	if !isRemote(source) {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer resp.Body.Close() // nolint
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading GTFS data: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	return b, nil
}

// ParseZip converts a GTFS zip archive into the engine's feed model.
func ParseZip(b []byte) (*model.Feed, error) {
	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}
	return fromStatic(static), nil
}

func fromStatic(static *gtfs.Static) *model.Feed {
	f := &model.Feed{}
	kept := make(map[string]bool, len(static.Stops))
	for _, s := range static.Stops {
		// numbered stops are entrances/platform nodes, not stations
		if s.Latitude == nil || s.Longitude == nil || s.Name == "" || unicode.IsDigit([]rune(s.Name)[0]) {
			continue
		}
		stop := model.Stop{ID: s.Id, Name: s.Name, Lat: *s.Latitude, Lon: *s.Longitude}
		if s.Parent != nil {
			stop.ParentID = s.Parent.Id
		}
		f.Stops = append(f.Stops, stop)
		kept[s.Id] = true
	}

	for _, r := range static.Routes {
		f.Routes = append(f.Routes, model.Route{
			ID:        r.Id,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Color:     hexColor(r.Color, "#0066cc"),
			TextColor: hexColor(r.TextColor, "#ffffff"),
		})
	}

	for _, svc := range static.Services {
		if !svc.StartDate.IsZero() && !svc.EndDate.IsZero() {
			f.Calendar = append(f.Calendar, model.CalendarEntry{
				ServiceID: svc.Id,
				Days:      [7]bool{svc.Sunday, svc.Monday, svc.Tuesday, svc.Wednesday, svc.Thursday, svc.Friday, svc.Saturday},
				StartDate: svc.StartDate.Format(model.DateLayout),
				EndDate:   svc.EndDate.Format(model.DateLayout),
			})
		}
		for _, d := range svc.AddedDates {
			f.Exceptions = append(f.Exceptions, model.CalendarException{ServiceID: svc.Id, Date: d.Format(model.DateLayout), Type: model.ExceptionAdded})
		}
		for _, d := range svc.RemovedDates {
			f.Exceptions = append(f.Exceptions, model.CalendarException{ServiceID: svc.Id, Date: d.Format(model.DateLayout), Type: model.ExceptionRemoved})
		}
	}

	for _, sh := range static.Shapes {
		for i, p := range sh.Points {
			f.ShapePoints = append(f.ShapePoints, model.RawShapePoint{
				ShapeID:  sh.ID,
				Lat:      p.Latitude,
				Lon:      p.Longitude,
				Sequence: i + 1,
				Distance: p.Distance,
			})
		}
	}

	for _, t := range static.Trips {
		if t.Route == nil || t.Service == nil {
			continue
		}
		trip := model.Trip{ID: t.ID, RouteID: t.Route.Id, ServiceID: t.Service.Id}
		if t.Shape != nil {
			trip.ShapeID = t.Shape.ID
		}
		// DirectionID encodes 1 as true and 2 as false
		if int64(t.DirectionId) == 1 {
			trip.DirectionID = 1
		}
		for _, st := range t.StopTimes {
			if st.Stop == nil || !kept[st.Stop.Id] {
				continue
			}
			trip.StopTimes = append(trip.StopTimes, model.StopTime{
				StopID:        st.Stop.Id,
				Sequence:      st.StopSequence,
				ArrivalSec:    int(st.ArrivalTime / time.Second),
				DepartureSec:  int(st.DepartureTime / time.Second),
				ShapeDistance: st.ShapeDistanceTraveled,
			})
		}
		if len(trip.StopTimes) > 0 {
			f.Trips = append(f.Trips, trip)
		}
	}
	return f
}

func hexColor(c, def string) string {
	c = strings.TrimPrefix(strings.TrimSpace(c), "#")
	if c == "" {
		return def
	}
	return "#" + c
}
