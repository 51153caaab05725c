package meterdb

func InsertLiveCurrentReading(reading *MeterDbLiveCurrentReading) error {
	db := GetDB()

	_, err := db.Exec(
		"INSERT INTO live_current_readings (timestamp, deci_amp) "+
			"VALUES (?, ?)",
		reading.Timestamp,
		reading.DeciAmp,
	)
	if err != nil {
		return err
	}
	return nil
}

func GetLiveCurrentReadingsBetween(startTime, endTime int64) ([]MeterDbLiveCurrentReading, error) {
	db := GetDB()

	rows, err := db.Query(
		"SELECT timestamp, deci_amp FROM live_current_readings "+
			"WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp",
		startTime, endTime,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []MeterDbLiveCurrentReading
	for rows.Next() {
		var r MeterDbLiveCurrentReading
		if err := rows.Scan(&r.Timestamp, &r.DeciAmp); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}
