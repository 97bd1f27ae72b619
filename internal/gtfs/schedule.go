package gtfs

import (
	"errors"
	"fmt"
	"sort"
)

// ErrMissingInput is returned when a mandatory static-feed collection is empty.
var ErrMissingInput = errors.New("missing mandatory static feed input")

// Schedule is the indexed, immutable schedule model the engine runs on.
type Schedule struct {
	Stops      map[string]*Stop
	Routes     map[string]*Route
	Trips      map[string]*Trip
	Shapes     map[string]*Shape
	Calendar   []CalendarEntry
	Exceptions []CalendarException

	// TripIDs lists Trips keys in sorted order for deterministic iteration.
	TripIDs []string
	// Rejected holds trips dropped because their stop times are out of order.
	Rejected []RejectedTrip
}

type RejectedTrip struct {
	TripID string
	Reason string
}

type Options struct {
	// StationCodes maps stop id -> external live-feed station code.
	StationCodes map[string]string
	// ServiceNumbers enables service number assignment when non-nil.
	ServiceNumbers *ServiceNumberConfig
}

// NewSchedule indexes a loaded feed, fills missing stop shape distances by
// projecting stops onto their trip's shape and rejects trips whose times are
// not ordered.
func NewSchedule(f *Feed, opts Options) (*Schedule, error) {
	if err := checkMandatory(f); err != nil {
		return nil, err
	}
	s := &Schedule{
		Stops:      make(map[string]*Stop, len(f.Stops)),
		Routes:     make(map[string]*Route, len(f.Routes)),
		Trips:      make(map[string]*Trip, len(f.Trips)),
		Shapes:     BuildShapes(f.ShapePoints),
		Calendar:   f.Calendar,
		Exceptions: f.Exceptions,
	}
	for i := range f.Stops {
		st := f.Stops[i]
		if code, ok := opts.StationCodes[st.ID]; ok {
			st.StationCode = code
		}
		s.Stops[st.ID] = &st
	}
	for i := range f.Routes {
		r := f.Routes[i]
		s.Routes[r.ID] = &r
	}
	for i := range f.Trips {
		t := f.Trips[i]
		if len(t.StopTimes) == 0 {
			continue
		}
		t.StopTimes = append([]StopTime(nil), t.StopTimes...)
		sort.SliceStable(t.StopTimes, func(a, b int) bool { return t.StopTimes[a].Sequence < t.StopTimes[b].Sequence })
		if reason := checkOrdering(t.StopTimes); reason != "" {
			s.Rejected = append(s.Rejected, RejectedTrip{TripID: t.ID, Reason: reason})
			continue
		}
		if shape, ok := s.Shapes[t.ShapeID]; ok && t.ShapeID != "" {
			s.fillShapeDistances(t.StopTimes, shape)
		}
		s.Trips[t.ID] = &t
		s.TripIDs = append(s.TripIDs, t.ID)
	}
	if len(s.Trips) == 0 {
		return nil, fmt.Errorf("%w: no trip with valid stop_times", ErrMissingInput)
	}
	sort.Strings(s.TripIDs)
	if opts.ServiceNumbers != nil {
		AssignServiceNumbers(s, *opts.ServiceNumbers)
	}
	return s, nil
}

func checkMandatory(f *Feed) error {
	if f == nil {
		return fmt.Errorf("%w: empty feed", ErrMissingInput)
	}
	stopTimes := 0
	for _, t := range f.Trips {
		stopTimes += len(t.StopTimes)
	}
	for _, c := range []struct {
		name string
		n    int
	}{
		{"stops", len(f.Stops)},
		{"routes", len(f.Routes)},
		{"trips", len(f.Trips)},
		{"stop_times", stopTimes},
		{"shapes", len(f.ShapePoints)},
	} {
		if c.n == 0 {
			return fmt.Errorf("%w: %s", ErrMissingInput, c.name)
		}
	}
	return nil
}

// checkOrdering verifies arrival <= departure <= next arrival for every stop time.
func checkOrdering(sts []StopTime) string {
	for i, st := range sts {
		if st.ArrivalSec > st.DepartureSec {
			return fmt.Sprintf("stop %s (seq %d): arrival %s after departure %s",
				st.StopID, st.Sequence, FormatDaySeconds(st.ArrivalSec), FormatDaySeconds(st.DepartureSec))
		}
		if i+1 < len(sts) && st.DepartureSec > sts[i+1].ArrivalSec {
			return fmt.Sprintf("stop %s (seq %d): departure %s after next arrival %s",
				st.StopID, st.Sequence, FormatDaySeconds(st.DepartureSec), FormatDaySeconds(sts[i+1].ArrivalSec))
		}
	}
	return ""
}

func (s *Schedule) fillShapeDistances(sts []StopTime, shape *Shape) {
	for i := range sts {
		if sts[i].ShapeDistance != nil {
			continue
		}
		stop, ok := s.Stops[sts[i].StopID]
		if !ok {
			continue
		}
		d := ProjectStop(stop, shape)
		sts[i].ShapeDistance = &d
	}
}

// StopName returns the stop's display name, or its id when unknown.
func (s *Schedule) StopName(id string) string {
	if st, ok := s.Stops[id]; ok {
		return st.Name
	}
	return id
}

// Destination returns the trip's final stop.
func (s *Schedule) Destination(t *Trip) *Stop {
	last := t.LastStop()
	if last == nil {
		return nil
	}
	return s.Stops[last.StopID]
}
