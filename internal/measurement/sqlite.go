package measurement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// timestampLayout is RFC 3339 with a fixed six-digit fraction so the TEXT
// column sorts chronologically. Trimmed-fraction formats do not.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite measurement store.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteStore: Store instance ready for use
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert appends a sample for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sample: Reading to persist; ID and CreatedAt are assigned by the database
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) Insert(ctx context.Context, sample Sample) error {
	if sample.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if sample.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO measurements (device_id, timestamp, voltage, current, power, kwh) VALUES (?, ?, ?, ?, ?, ?)",
		sample.DeviceID,
		sample.Timestamp.UTC().Format(timestampLayout),
		sample.Voltage,
		sample.Current,
		sample.Power,
		sample.Kwh,
	)
	if err != nil {
		return fmt.Errorf("inserting measurement: %w", err)
	}

	return nil
}

// Latest returns the most recent sample for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//
// Returns:
//   - Sample: Newest sample by timestamp, row id breaking ties
//   - error: ErrNoSamples when the device has none, otherwise the query error
func (s *SQLiteStore) Latest(ctx context.Context, deviceID string) (Sample, error) {
	if deviceID == "" {
		return Sample{}, fmt.Errorf("device id is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, timestamp, voltage, current, power, kwh, created_at
		 FROM measurements
		 WHERE device_id = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT 1`,
		deviceID,
	)

	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Sample{}, fmt.Errorf("%w: %s", ErrNoSamples, deviceID)
	}
	if err != nil {
		return Sample{}, fmt.Errorf("querying latest measurement: %w", err)
	}

	return sample, nil
}

// List returns recent samples for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum samples to return (default 50, max 500)
//   - offset: Rows to skip from the newest end
//
// Returns:
//   - []Sample: Samples ordered by timestamp DESC, id DESC (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (s *SQLiteStore) List(ctx context.Context, deviceID string, limit, offset int) ([]Sample, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, timestamp, voltage, current, power, kwh, created_at
		 FROM measurements
		 WHERE device_id = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ? OFFSET ?`,
		deviceID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0, limit)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating measurements: %w", err)
	}

	return samples, nil
}

// CountForDevice returns the number of samples stored for a device.
func (s *SQLiteStore) CountForDevice(ctx context.Context, deviceID string) (int64, error) {
	if deviceID == "" {
		return 0, fmt.Errorf("device id is required")
	}

	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM measurements WHERE device_id = ?",
		deviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting measurements: %w", err)
	}

	return count, nil
}

// Count returns the number of samples stored across all devices.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting measurements: %w", err)
	}

	return count, nil
}

// DeleteForDevice removes every sample for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) DeleteForDevice(ctx context.Context, deviceID string) (int64, error) {
	if deviceID == "" {
		return 0, fmt.Errorf("device id is required")
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM measurements WHERE device_id = ?",
		deviceID,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting measurements: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// DistinctDevices returns the IDs of devices that have samples, sorted
// ascending.
func (s *SQLiteStore) DistinctDevices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT device_id FROM measurements ORDER BY device_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying device ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device ids: %w", err)
	}

	return ids, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanSample.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (Sample, error) {
	var s Sample
	var ts string

	if err := row.Scan(&s.ID, &s.DeviceID, &ts, &s.Voltage, &s.Current, &s.Power, &s.Kwh, &s.CreatedAt); err != nil {
		return Sample{}, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Sample{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	s.Timestamp = parsed

	return s, nil
}
