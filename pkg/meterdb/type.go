package meterdb

// Live current readings as broadcast by the interpreter API.
// Stored in tenths of an ampere to keep the table integer-only.
type MeterDbLiveCurrentReading struct {
	Timestamp int64  `db:"timestamp"`
	DeciAmp   uint32 `db:"deci_amp"`
}

// Aggregate model - computed averages per timeframe
type AggregateLiveCurrentHourly struct {
	HourStart   int64  `db:"hour_start"`
	AvgDeciAmp  uint32 `db:"avg_deci_amp"`
	MaxDeciAmp  uint32 `db:"max_deci_amp"`
	SampleCount uint32 `db:"sample_count"`
}
