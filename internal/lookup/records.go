package lookup

import (
	"strings"
	"time"
)

// Acronym is one expansion of an abbreviation.
type Acronym struct {
	Term      string `json:"term"`
	Expansion string `json:"expansion"`
	Category  string `json:"category,omitempty"`
}

// Condition is one weather observation for a location.
type Condition struct {
	Location     string    `json:"location"`
	Summary      string    `json:"summary"`
	TemperatureC float64   `json:"temperature_c"`
	Humidity     int       `json:"humidity"`
	ObservedAt   time.Time `json:"observed_at"`
}

// AcronymKey normalises an acronym term so "api" and " API " share one cache entry.
func AcronymKey(term string) string {
	return strings.ToUpper(strings.TrimSpace(term))
}

// LocationKey normalises a location name.
func LocationKey(location string) string {
	return strings.Join(strings.Fields(strings.ToLower(location)), " ")
}
