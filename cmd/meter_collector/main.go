// Responsible for storing the measurements collected from the energy meter
// Depends on the interpreter API being online.
package main

import (
	"log"
	"os"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/aggregator"
	"github.com/PBrunot/owlsensor-go/pkg/config"
	"github.com/PBrunot/owlsensor-go/pkg/interpreter"
	"github.com/PBrunot/owlsensor-go/pkg/meterdb"
	"github.com/PBrunot/owlsensor-go/pkg/owlutils"
)

func main() {
	// Initialize database
	meterdb.InitializeDatabase()

	// Load config, env var overrides for container setups
	if err := config.LoadMeterCollectorConfig(); err != nil {
		log.Fatalf("Failed to load meter collector config: %v", err)
	}
	host := os.Getenv("INTERPRETER_API_HOST")
	if host == "" {
		host = config.ActiveMeterCollectorConfig.InterpreterAPIHost
	}

	// Recompute aggregates periodically while readings stream in
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			aggregator.RunAggregations()
		}
	}()

	// Subscribe to websocket with retry
	interpreter.StartListener(host, handleMeasurement)
}

// Store one live measurement
func handleMeasurement(m *interpreter.LiveMeasurement) {
	ts, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	reading := &meterdb.MeterDbLiveCurrentReading{
		Timestamp: ts.Unix(),
		DeciAmp:   owlutils.AmpToDeciAmp(m.CurrentA),
	}
	if err := meterdb.InsertLiveCurrentReading(reading); err != nil {
		log.Printf("Failed to store reading: %v", err)
	}
}
