package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"train-positions/internal/gtfs"
)

// Matching is the data-driven part of the engine: station codes for live
// lookups, destination aliases, service-number rules and validation bounds.
type Matching struct {
	// StationCodes maps a GTFS stop id to its 3-character live feed code.
	StationCodes       map[string]string         `yaml:"stationCodes" validate:"dive,keys,required,endkeys,len=3"`
	DestinationAliases [][]string                `yaml:"destinationAliases" validate:"dive,len=2,dive,required"`
	ServiceNumbers     *gtfs.ServiceNumberConfig `yaml:"serviceNumbers" validate:"omitempty"`
	Bounds             *gtfs.Bounds              `yaml:"bounds" validate:"omitempty"`
}

// Aliases returns the configured alias pairs, or nil when none are set.
func (m *Matching) Aliases() [][2]string {
	if m == nil || len(m.DestinationAliases) == 0 {
		return nil
	}
	out := make([][2]string, 0, len(m.DestinationAliases))
	for _, a := range m.DestinationAliases {
		out = append(out, [2]string{a[0], a[1]})
	}
	return out
}

// LoadMatching reads and validates the matching file at path. An empty path
// yields an empty configuration.
func LoadMatching(path string) (*Matching, error) {
	if path == "" {
		return &Matching{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read matching config: %w", err)
	}
	return ParseMatching(data)
}

func ParseMatching(data []byte) (*Matching, error) {
	var m Matching
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse matching config: %w", err)
	}
	v := validator.New()
	if err := v.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid matching config: %w", err)
	}
	if m.ServiceNumbers != nil && m.ServiceNumbers.DefaultCode == 0 {
		m.ServiceNumbers.DefaultCode = 99
	}
	return &m, nil
}
