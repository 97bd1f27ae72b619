package gtfs

import (
	"fmt"
	"sort"
	"strings"
)

type Terminal struct {
	Keyword string `yaml:"keyword" json:"keyword" validate:"required"`
	Name    string `yaml:"name" json:"name" validate:"required"`
}

type RouteCode struct {
	From string `yaml:"from" json:"from" validate:"required"`
	To   string `yaml:"to" json:"to" validate:"required"`
	Code int    `yaml:"code" json:"code" validate:"gte=0,lte=99"`
}

// ServiceNumberConfig drives AssignServiceNumbers. Terminals are tried in
// order; the first keyword contained in the lower-cased stop name wins.
type ServiceNumberConfig struct {
	Terminals     []Terminal  `yaml:"terminals" json:"terminals" validate:"dive"`
	RouteCodes    []RouteCode `yaml:"routeCodes" json:"routeCodes" validate:"dive"`
	MainTerminals []string    `yaml:"mainTerminals" json:"mainTerminals"`
	DefaultCode   int         `yaml:"defaultCode" json:"defaultCode" validate:"gte=0,lte=99"`
	// Overflow maps a route code to the code used once the sequence passes 99.
	Overflow map[int]int `yaml:"overflow" json:"overflow"`
}

func (c ServiceNumberConfig) terminalFor(stopName string) string {
	name := strings.ToLower(strings.TrimSpace(stopName))
	for _, t := range c.Terminals {
		if strings.Contains(name, strings.ToLower(t.Keyword)) {
			return t.Name
		}
	}
	return ""
}

func (c ServiceNumberConfig) routeCode(origin, destination string) int {
	for _, rc := range c.RouteCodes {
		if (rc.From == origin && rc.To == destination) || (rc.From == destination && rc.To == origin) {
			return rc.Code
		}
	}
	return c.DefaultCode
}

func (c ServiceNumberConfig) isMain(terminal string) bool {
	for _, m := range c.MainTerminals {
		if m == terminal {
			return true
		}
	}
	return false
}

type serviceGroup struct {
	serviceID string
	code      int
	main      bool
}

// AssignServiceNumbers numbers trips per (service, route code, direction).
// Trips heading to a main terminal get even sequence numbers, others odd,
// in order of first departure. Trips whose endpoints are not terminals keep
// an empty ServiceNumber.
func AssignServiceNumbers(s *Schedule, cfg ServiceNumberConfig) {
	groups := make(map[serviceGroup][]*Trip)
	for _, id := range s.TripIDs {
		t := s.Trips[id]
		first, last := t.FirstStop(), t.LastStop()
		if first == nil {
			continue
		}
		origin := cfg.terminalFor(s.StopName(first.StopID))
		destination := cfg.terminalFor(s.StopName(last.StopID))
		if origin == "" || destination == "" {
			continue
		}
		key := serviceGroup{serviceID: t.ServiceID, code: cfg.routeCode(origin, destination), main: cfg.isMain(destination)}
		groups[key] = append(groups[key], t)
	}
	for key, trips := range groups {
		sort.SliceStable(trips, func(i, j int) bool {
			return trips[i].StopTimes[0].DepartureSec < trips[j].StopTimes[0].DepartureSec
		})
		seq := 1
		if key.main {
			seq = 0
		}
		for _, t := range trips {
			code, n := key.code, seq
			if next, ok := cfg.Overflow[code]; ok && n > 99 {
				code, n = next, n-100
			}
			t.ServiceNumber = fmt.Sprintf("%d%02d", code, n)
			seq += 2
		}
	}
}
