package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// ActiveSensors returns all sensors that are not marked inactive, ordered
// by segment id for deterministic processing.
func (db *DB) ActiveSensors() ([]SensorLocation, error) {
	query := `
		SELECT segment_id, timezone, COALESCE(county, ''), status
		FROM sensor_locations
		WHERE status != $1
		ORDER BY segment_id ASC
	`

	rows, err := db.Query(query, SensorStatusInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []SensorLocation
	for rows.Next() {
		var s SensorLocation
		if err := rows.Scan(&s.SegmentID, &s.Timezone, &s.County, &s.Status); err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}

	return sensors, rows.Err()
}

// BackfillCandidates returns up to limit active sensors ordered by how
// shallow their stored history is: sensors with no rows first, then those
// whose oldest stored hour is most recent. Repeated runs therefore walk
// every sensor's history backward at roughly the same pace without any
// cursor state outside the data itself.
func (db *DB) BackfillCandidates(limit int) ([]SensorLocation, error) {
	query := `
		SELECT s.segment_id, s.timezone, COALESCE(s.county, ''), s.status
		FROM sensor_locations s
		LEFT JOIN sensor_hourly_data h ON h.segment_id = s.segment_id
		WHERE s.status != $1
		GROUP BY s.segment_id, s.timezone, s.county, s.status
		ORDER BY MIN(h.hour_timestamp) DESC NULLS FIRST, s.segment_id ASC
		LIMIT $2
	`

	rows, err := db.Query(query, SensorStatusInactive, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backfill candidates: %w", err)
	}
	defer rows.Close()

	var sensors []SensorLocation
	for rows.Next() {
		var s SensorLocation
		if err := rows.Scan(&s.SegmentID, &s.Timezone, &s.County, &s.Status); err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}

	return sensors, rows.Err()
}

// LatestHour returns the newest stored hour for a sensor, or nil if the
// sensor has no rows yet.
func (db *DB) LatestHour(segmentID int64) (*time.Time, error) {
	return db.hourBound(segmentID, "MAX")
}

// OldestHour returns the oldest stored hour for a sensor, or nil if the
// sensor has no rows yet.
func (db *DB) OldestHour(segmentID int64) (*time.Time, error) {
	return db.hourBound(segmentID, "MIN")
}

func (db *DB) hourBound(segmentID int64, agg string) (*time.Time, error) {
	query := fmt.Sprintf(
		"SELECT %s(hour_timestamp) FROM sensor_hourly_data WHERE segment_id = $1", agg)

	var ts sql.NullTime
	if err := db.QueryRow(query, segmentID).Scan(&ts); err != nil {
		return nil, fmt.Errorf("failed to query hour bound for sensor %d: %w", segmentID, err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time.UTC()
	return &t, nil
}

// UpsertHourlyBatch writes a batch of hourly samples in a single statement.
// Conflicts on (segment_id, hour_timestamp) overwrite every metric column,
// so re-writing the same hours is idempotent. Callers are responsible for
// keeping batches under the bulk statement ceiling.
func (db *DB) UpsertHourlyBatch(samples []HourlySample) error {
	if len(samples) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO sensor_hourly_data (
			segment_id, hour_timestamp, bike, car, heavy, pedestrian, v85, uptime
		) VALUES `)

	args := make([]interface{}, 0, len(samples)*8)
	for i, s := range samples {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args,
			s.SegmentID, s.HourTimestamp, s.Bike, s.Car, s.Heavy, s.Pedestrian, s.V85, s.Uptime)
	}

	sb.WriteString(`
		ON CONFLICT (segment_id, hour_timestamp) DO UPDATE SET
			bike = EXCLUDED.bike,
			car = EXCLUDED.car,
			heavy = EXCLUDED.heavy,
			pedestrian = EXCLUDED.pedestrian,
			v85 = EXCLUDED.v85,
			uptime = EXCLUDED.uptime
	`)

	if _, err := db.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("failed to upsert hourly batch: %w", err)
	}
	return nil
}

// PruneHourlyBefore deletes hourly rows older than cutoff and returns the
// number of rows removed. Zero matches is not an error.
func (db *DB) PruneHourlyBefore(cutoff time.Time) (int64, error) {
	result, err := db.Exec(
		"DELETE FROM sensor_hourly_data WHERE hour_timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune hourly data: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// DeleteWeeklyStats removes any existing rollup rows for the given week so a
// recompute starts from a clean slate.
func (db *DB) DeleteWeeklyStats(weekEnding time.Time) error {
	_, err := db.Exec(
		"DELETE FROM sensor_weekly_stats WHERE week_ending = $1", weekEnding)
	if err != nil {
		return fmt.Errorf("failed to delete weekly stats for %s: %w",
			weekEnding.Format("2006-01-02"), err)
	}
	return nil
}

// InsertWeeklyStats aggregates hourly rows in [weekStart, weekEnd] into one
// rollup row per sensor, denormalizing county from sensor_locations. Returns
// the number of rollup rows written.
func (db *DB) InsertWeeklyStats(weekEnding, weekStart, weekEnd time.Time) (int64, error) {
	query := `
		INSERT INTO sensor_weekly_stats (week_ending, segment_id, county, total_bikes, avg_daily)
		SELECT
			$1 AS week_ending,
			h.segment_id,
			s.county,
			COALESCE(SUM(h.bike), 0) AS total_bikes,
			COALESCE(ROUND(SUM(h.bike) / 7.0), 0) AS avg_daily
		FROM sensor_hourly_data h
		INNER JOIN sensor_locations s ON h.segment_id = s.segment_id
		WHERE h.hour_timestamp >= $2
		  AND h.hour_timestamp <= $3
		GROUP BY h.segment_id, s.county
	`

	result, err := db.Exec(query, weekEnding, weekStart, weekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to insert weekly stats: %w", err)
	}

	inserted, _ := result.RowsAffected()
	return inserted, nil
}

// DayStatsFor summarizes the hourly rows whose timestamp falls inside the
// UTC calendar day starting at dayStart.
func (db *DB) DayStatsFor(dayStart time.Time) (*DayStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT segment_id),
			MIN(hour_timestamp),
			MAX(hour_timestamp)
		FROM sensor_hourly_data
		WHERE hour_timestamp >= $1 AND hour_timestamp < $2
	`

	var stats DayStats
	var oldest, newest sql.NullTime
	err := db.QueryRow(query, dayStart, dayStart.AddDate(0, 0, 1)).Scan(
		&stats.RecordCount, &stats.SensorCount, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to query day stats: %w", err)
	}

	if oldest.Valid {
		t := oldest.Time.UTC()
		stats.OldestRecord = &t
	}
	if newest.Valid {
		t := newest.Time.UTC()
		stats.NewestRecord = &t
	}

	return &stats, nil
}
