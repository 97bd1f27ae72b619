package sim

import "strings"

// DefaultAliases are terminal-name pairs that live displays and the
// schedule spell differently.
var DefaultAliases = [][2]string{
	{"larrabasterra", "sopela"},
	{"san inazio", "sant inazio"},
}

// DestinationMatcher decides whether a live platform label refers to a
// trip's scheduled destination.
type DestinationMatcher struct {
	aliases [][2]string
}

func NewDestinationMatcher(aliases [][2]string) *DestinationMatcher {
	m := &DestinationMatcher{}
	for _, a := range aliases {
		x, y := normalizeName(a[0]), normalizeName(a[1])
		if x == "" || y == "" {
			continue
		}
		m.aliases = append(m.aliases, [2]string{x, y})
	}
	return m
}

var slashToSpace = strings.NewReplacer("/", " ")

func normalizeName(s string) string {
	return strings.TrimSpace(slashToSpace.Replace(strings.ToLower(s)))
}

// Match is case-insensitive, treats "/" as a space, and accepts either name
// containing the other or any configured alias pair linking the two.
func (m *DestinationMatcher) Match(label, destination string) bool {
	l, d := normalizeName(label), normalizeName(destination)
	if l == "" || d == "" {
		return false
	}
	if strings.Contains(l, d) || strings.Contains(d, l) {
		return true
	}
	for _, a := range m.aliases {
		if (strings.Contains(l, a[0]) && strings.Contains(d, a[1])) ||
			(strings.Contains(l, a[1]) && strings.Contains(d, a[0])) {
			return true
		}
	}
	return false
}
