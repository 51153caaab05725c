package interpreter

import (
	"encoding/json"
	"log"
)

// LiveMeasurement is the wire format broadcast by the interpreter API for
// every decoded realtime reading.
type LiveMeasurement struct {
	Timestamp string  `json:"timestamp"`
	CurrentA  float64 `json:"current_a"`
	Model     string  `json:"model"`
	Port      string  `json:"port"`
}

func (m *LiveMeasurement) ToJsonBytes() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		log.Printf("Error marshaling measurement: %v", err)
		return nil
	}
	return data
}

// MeasurementFromJsonBytes parses a broadcast message, returning nil on
// malformed input.
func MeasurementFromJsonBytes(data []byte) *LiveMeasurement {
	var m LiveMeasurement
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return &m
}
