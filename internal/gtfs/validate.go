package gtfs

import (
	"fmt"
	"sort"
)

// Bounds is an inclusive coordinate box stops are expected to fall in.
type Bounds struct {
	MinLat float64 `yaml:"minLat" json:"minLat" validate:"gte=-90,lte=90"`
	MaxLat float64 `yaml:"maxLat" json:"maxLat" validate:"gte=-90,lte=90,gtefield=MinLat"`
	MinLon float64 `yaml:"minLon" json:"minLon" validate:"gte=-180,lte=180"`
	MaxLon float64 `yaml:"maxLon" json:"maxLon" validate:"gte=-180,lte=180,gtefield=MinLon"`
}

func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

type Report struct {
	Errors   []string
	Warnings []string
}

func (r Report) OK() bool { return len(r.Errors) == 0 }

// Validate checks a loaded feed before indexing: empty mandatory tables,
// dangling references, stop sequence continuity, time ordering and, when
// bounds is non-nil, stop coordinates.
func Validate(f *Feed, bounds *Bounds) Report {
	var r Report
	if err := checkMandatory(f); err != nil {
		r.Errors = append(r.Errors, err.Error())
		if f == nil {
			return r
		}
	}

	stops := make(map[string]bool, len(f.Stops))
	for _, s := range f.Stops {
		stops[s.ID] = true
	}
	routes := make(map[string]bool, len(f.Routes))
	for _, rt := range f.Routes {
		routes[rt.ID] = true
	}

	badRoutes, badStops, gaps, unordered := 0, 0, 0, 0
	for _, t := range f.Trips {
		if !routes[t.RouteID] {
			badRoutes++
		}
		sts := append([]StopTime(nil), t.StopTimes...)
		sort.SliceStable(sts, func(a, b int) bool { return sts[a].Sequence < sts[b].Sequence })
		gap := false
		for i, st := range sts {
			if !stops[st.StopID] {
				badStops++
			}
			if i > 0 && st.Sequence != sts[i-1].Sequence+1 {
				gap = true
			}
		}
		if gap {
			gaps++
		}
		if checkOrdering(sts) != "" {
			unordered++
		}
	}
	if badRoutes > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("found %d trips with invalid route_id references", badRoutes))
	}
	if badStops > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("found %d stop_times with invalid stop_id references", badStops))
	}
	if unordered > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("found %d trips with non-monotonic times", unordered))
	}
	if gaps > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("found %d trips with non-continuous stop sequences", gaps))
	}

	if bounds != nil {
		outside := 0
		for _, s := range f.Stops {
			if !bounds.Contains(s.Lat, s.Lon) {
				outside++
			}
		}
		if outside > 0 {
			r.Errors = append(r.Errors, fmt.Sprintf("found %d stops with coordinates outside bounds", outside))
		}
	}
	return r
}
