package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-positions/internal/livefeed"
)

func intPtr(v int) *int { return &v }

func TestReconcileSelectsExactMatch(t *testing.T) {
	e := newEngine(t)
	// 09:55:00, T1 waits to depart A at 10:00:00
	stats := e.Reconcile(map[string][]livefeed.Entry{
		"PLE": {{Destination: "Etxebarri", Minutes: 5}},
	}, at(35700))

	off, ok := e.Offset("T1")
	require.True(t, ok)
	assert.Equal(t, 0, off)
	assert.Equal(t, ReconcileStats{Candidates: 2, NoCode: 1, Updated: 1}, stats)
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name    string
		entries []livefeed.Entry
		want    *int
		length  *int
	}{
		{
			name:    "late train",
			entries: []livefeed.Entry{{Destination: "ETXEBARRI", Minutes: 8, Length: intPtr(3)}},
			want:    intPtr(180),
			length:  intPtr(3),
		},
		{
			name: "smallest difference wins",
			entries: []livefeed.Entry{
				{Destination: "Etxebarri", Minutes: 7},
				{Destination: "Etxebarri", Minutes: 4},
				{Destination: "Etxebarri", Minutes: 30},
			},
			want: intPtr(-60),
		},
		{
			name:    "900 seconds is still accepted",
			entries: []livefeed.Entry{{Destination: "Etxebarri", Minutes: 20}},
			want:    intPtr(900),
		},
		{
			name:    "more than 900 seconds is noise",
			entries: []livefeed.Entry{{Destination: "Etxebarri", Minutes: 21}},
		},
		{
			name:    "other destination ignored",
			entries: []livefeed.Entry{{Destination: "Basauri", Minutes: 5}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			e.Reconcile(map[string][]livefeed.Entry{"PLE": tt.entries}, at(35700))
			off, ok := e.Offset("T1")
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, *tt.want, off)
			if tt.length != nil {
				assert.Equal(t, *tt.length, e.lengths["T1"])
			}
		})
	}
}

func TestReconcileComparesAgainstStoredOffset(t *testing.T) {
	e := newEngine(t)
	e.offsets["T1"] = 600
	// simulated arrival is 36600; 1 minute from now (35760) is 840s off and
	// still accepted, but 15 minutes (36600) is exact
	e.Reconcile(map[string][]livefeed.Entry{"PLE": {
		{Destination: "Etxebarri", Minutes: 1},
		{Destination: "Etxebarri", Minutes: 15},
	}}, at(35700))
	off, _ := e.Offset("T1")
	assert.Equal(t, 600, off)
}

func TestReconcileStaleOffsetPersists(t *testing.T) {
	e := newEngine(t)
	e.Reconcile(map[string][]livefeed.Entry{"PLE": {{Destination: "Etxebarri", Minutes: 8}}}, at(35700))
	off, _ := e.Offset("T1")
	require.Equal(t, 180, off)

	stats := e.Reconcile(map[string][]livefeed.Entry{}, at(35900))
	off, ok := e.Offset("T1")
	assert.True(t, ok)
	assert.Equal(t, 180, off)
	assert.Equal(t, 1, stats.Unmatched)
}

func TestReconcileUsesNextStop(t *testing.T) {
	e := newEngine(t)
	// T1 moving A -> B at 36050: only MID entries matter
	e.Tick(at(36050))
	e.Reconcile(map[string][]livefeed.Entry{
		"PLE": {{Destination: "Etxebarri", Minutes: 0}},
		"MID": {{Destination: "Etxebarri / Plentzia", Minutes: 1}},
	}, at(36050))
	off, ok := e.Offset("T1")
	require.True(t, ok)
	// 36050 + 60 - 36090
	assert.Equal(t, 20, off)
}

func TestReconcileUsesConfiguredAliases(t *testing.T) {
	f := lineFeed()
	f.Stops[2].Name = "Sopela"
	s := newSchedule(t, f)

	plain := New(s, Options{Matcher: NewDestinationMatcher(nil)})
	plain.Reconcile(map[string][]livefeed.Entry{"PLE": {{Destination: "Larrabasterra", Minutes: 5}}}, at(35700))
	_, ok := plain.Offset("T1")
	assert.False(t, ok)

	aliased := New(s, Options{})
	aliased.Reconcile(map[string][]livefeed.Entry{"PLE": {{Destination: "Larrabasterra", Minutes: 6}}}, at(35700))
	off, ok := aliased.Offset("T1")
	assert.True(t, ok)
	assert.Equal(t, 60, off)
}

func TestMatch(t *testing.T) {
	m := NewDestinationMatcher(DefaultAliases)
	tests := []struct {
		label, dest string
		want        bool
	}{
		{"Etxebarri", "Etxebarri", true},
		{"ETXEBARRI", "etxebarri", true},
		{"Plentzia", "Plentzia/Sopela", true},
		{"Ibarbengoa/Plentzia", "Plentzia", true},
		{"  Basauri ", "Basauri", true},
		{"Larrabasterra", "Sopela", true},
		{"Sopela", "Larrabasterra", true},
		{"San Inazio", "Sant Inazio", true},
		{"Kabiezes", "Etxebarri", false},
		{"", "Etxebarri", false},
		{"Etxebarri", "", false},
		{"   ", "Etxebarri", false},
	}
	for _, tt := range tests {
		t.Run(tt.label+"->"+tt.dest, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.label, tt.dest))
		})
	}
	assert.False(t, NewDestinationMatcher(nil).Match("Larrabasterra", "Sopela"))
}
