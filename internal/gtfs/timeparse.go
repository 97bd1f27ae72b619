package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "20060102"

// ParseDaySeconds parses HH:MM:SS possibly with hours >= 24.
// Malformed or empty input yields 0.
func ParseDaySeconds(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	vals := [3]int{}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0
		}
		vals[i] = v
	}
	return vals[0]*3600 + vals[1]*60 + vals[2]
}

// FormatDaySeconds renders seconds since midnight as HH:MM:SS without wrapping past 24h.
func FormatDaySeconds(sec int) string {
	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -sec
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, sec/3600, (sec/60)%60, sec%60)
}

// ServiceDate returns the YYYYMMDD date of t in its own location.
func ServiceDate(t time.Time) string {
	return t.Format(DateLayout)
}

func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
