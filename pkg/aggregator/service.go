package aggregator

import (
	"log"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/meterdb"
)

// RoundToHourStart returns the Unix timestamp of the start of the hour for the given time
func RoundToHourStart(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

// getHourEnd returns the Unix timestamp of the last second of the hour (next hour start - 1)
func getHourEnd(hourStart int64) int64 {
	return time.Unix(hourStart, 0).Add(time.Hour).Unix() - 1
}

// aggregateLiveCurrentHourly aggregates live current readings for a specific hour
func aggregateLiveCurrentHourly(hourStart int64) error {
	db := meterdb.GetDB()
	hourEnd := getHourEnd(hourStart)

	query := `
		SELECT
			AVG(deci_amp) as avg_deci_amp,
			MAX(deci_amp) as max_deci_amp,
			COUNT(*) as count
		FROM live_current_readings
		WHERE timestamp >= ? AND timestamp <= ?
	`

	var avgDeciAmp, maxDeciAmp *float64
	var sampleCount uint32
	if err := db.QueryRow(query, hourStart, hourEnd).Scan(&avgDeciAmp, &maxDeciAmp, &sampleCount); err != nil {
		return err
	}

	// Only insert if we have data
	if sampleCount == 0 || avgDeciAmp == nil || maxDeciAmp == nil {
		return nil
	}

	insertQuery := `
		INSERT OR REPLACE INTO aggregate_live_current_hourly
		(hour_start, avg_deci_amp, max_deci_amp, sample_count)
		VALUES (?, ?, ?, ?)
	`

	_, err := db.Exec(insertQuery, hourStart, uint32(*avgDeciAmp), uint32(*maxDeciAmp), sampleCount)
	return err
}

// RunAggregations recomputes the aggregates touched by recent inserts:
// the current hour and the previous one, so a run shortly after the hour
// boundary finalizes the hour that just closed.
func RunAggregations() {
	now := time.Now().UTC()
	hours := []int64{
		RoundToHourStart(now),
		RoundToHourStart(now.Add(-time.Hour)),
	}

	for _, hourStart := range hours {
		if err := aggregateLiveCurrentHourly(hourStart); err != nil {
			log.Printf("Hourly aggregation for %d failed: %v", hourStart, err)
		}
	}
}
