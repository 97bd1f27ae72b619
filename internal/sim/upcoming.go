package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"train-positions/internal/gtfs"
)

const (
	DefaultUpcomingWindow = 45 * time.Minute
	// TerminalRatio is the share of active trips that must end at a stop for
	// it to be treated as a terminal.
	TerminalRatio = 0.3
)

type Departure struct {
	TripID         string    `json:"tripId"`
	RouteID        string    `json:"routeId"`
	RouteShortName string    `json:"routeShortName,omitempty"`
	RouteColor     string    `json:"routeColor,omitempty"`
	ServiceNumber  string    `json:"serviceNumber,omitempty"`
	Destination    string    `json:"destination"`
	Scheduled      int       `json:"scheduledSeconds"`
	Expected       time.Time `json:"expected"`
	MinutesUntil   int       `json:"minutesUntil"`
	Departing      bool      `json:"departing"`
	Delay          string    `json:"delay,omitempty"` // "+3 min", "-1 min"
	VehicleLength  *int      `json:"vehicleLength,omitempty"`
}

type Departures struct {
	StopID     string      `json:"stopId"`
	IsTerminal bool        `json:"isTerminal"`
	Trains     []Departure `json:"trains"`
}

// Upcoming lists trips reaching stopID (or one of its child stops) within
// window of now. At a terminal only trips ending there are listed.
func (e *Engine) Upcoming(stopID string, now time.Time, window time.Duration) Departures {
	if window <= 0 {
		window = DefaultUpcomingWindow
	}
	out := Departures{StopID: stopID, Trains: []Departure{}}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return out
	}

	ids := map[string]bool{stopID: true}
	for _, s := range e.sched.Stops {
		if s.ParentID == stopID {
			ids[s.ID] = true
		}
	}

	today := gtfs.Midnight(now)
	todayServices := e.sched.ActiveServicesOn(today)
	total, ending := 0, 0
	for _, id := range e.sched.TripIDs {
		trip := e.sched.Trips[id]
		if _, ok := todayServices[trip.ServiceID]; !ok {
			continue
		}
		total++
		if ids[trip.LastStop().StopID] {
			ending++
		}
	}
	out.IsTerminal = total > 0 && float64(ending)/float64(total) > TerminalRatio

	yesterday := gtfs.Midnight(today.Add(-12 * time.Hour))
	days := []struct {
		midnight time.Time
		services map[string]struct{}
	}{
		{today, todayServices},
		{yesterday, e.sched.ActiveServicesOn(yesterday)},
	}
	from, until := now, now.Add(window)
	for _, day := range days {
		for _, id := range e.sched.TripIDs {
			trip := e.sched.Trips[id]
			if _, ok := day.services[trip.ServiceID]; !ok {
				continue
			}
			offset := e.offsets[trip.ID]
			for _, c := range relevantTimes(trip, ids, out.IsTerminal) {
				expected := day.midnight.Add(time.Duration(c.sec+offset) * time.Second)
				if expected.Before(from) || expected.After(until) {
					continue
				}
				out.Trains = append(out.Trains, e.departure(trip.ID, c.sec, offset, expected, now, c.departing))
				break
			}
		}
	}

	sort.SliceStable(out.Trains, func(i, j int) bool {
		a, b := out.Trains[i], out.Trains[j]
		if !a.Expected.Equal(b.Expected) {
			return a.Expected.Before(b.Expected)
		}
		return a.TripID < b.TripID
	})
	return out
}

type relevantTime struct {
	sec       int
	departing bool
}

// relevantTimes lists the scheduled times a trip serves the stop set at, in
// stop order. At a terminal only a trip ending there counts, shown at its
// arrival, or at its departure when it also starts there.
func relevantTimes(trip *gtfs.Trip, ids map[string]bool, terminal bool) []relevantTime {
	if terminal {
		last := trip.LastStop()
		if !ids[last.StopID] {
			return nil
		}
		if first := trip.FirstStop(); ids[first.StopID] && len(trip.StopTimes) > 1 {
			return []relevantTime{{sec: first.DepartureSec, departing: true}}
		}
		return []relevantTime{{sec: last.ArrivalSec}}
	}
	var out []relevantTime
	for _, st := range trip.StopTimes {
		if ids[st.StopID] {
			out = append(out, relevantTime{sec: st.ArrivalSec})
		}
	}
	return out
}

func (e *Engine) departure(tripID string, sec, offset int, expected, now time.Time, departing bool) Departure {
	trip := e.sched.Trips[tripID]
	d := Departure{
		TripID:        trip.ID,
		RouteID:       trip.RouteID,
		ServiceNumber: trip.ServiceNumber,
		Scheduled:     sec,
		Expected:      expected,
		MinutesUntil:  int(math.Floor(expected.Sub(now).Minutes())),
		Departing:     departing,
	}
	if dest := e.sched.Destination(trip); dest != nil {
		d.Destination = dest.Name
	}
	if r, ok := e.sched.Routes[trip.RouteID]; ok {
		d.RouteShortName = r.ShortName
		d.RouteColor = r.Color
	}
	if m := int(math.Round(float64(offset) / 60)); m != 0 {
		d.Delay = fmt.Sprintf("%+d min", m)
	}
	if l, ok := e.lengths[trip.ID]; ok {
		v := l
		d.VehicleLength = &v
	}
	return d
}
