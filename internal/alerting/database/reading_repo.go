package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadingRepo is the data access layer for raw sensor readings.
type ReadingRepo struct {
	db *Database
}

func NewReadingRepo(db *Database) *ReadingRepo {
	return &ReadingRepo{db: db}
}

// Insert appends one reading for the sensor.
func (r *ReadingRepo) Insert(ctx context.Context, sensorID string, value float64) error {
	query := `INSERT INTO readings (sensor_id, value) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, sensorID, value); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// Latest returns the most recent raw value for the sensor. The evaluator
// compares it against the incoming value so bitmask alerts fire only on bit
// transitions. found is false when the sensor has no readings yet.
func (r *ReadingRepo) Latest(ctx context.Context, sensorID string) (value float64, found bool, err error) {
	query := `
		SELECT value FROM readings
		WHERE sensor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	err = r.db.QueryRowContext(ctx, query, sensorID).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query latest reading: %w", err)
	}
	return value, true, nil
}
