package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/patrol/internal/sensor"
)

// ScanRepo — журнал измерений (таблица sensor_scan_data).
// Реализует sensor.Recorder.
type ScanRepo struct {
	pool *pgxpool.Pool
}

// NewScanRepo создаёт новый ScanRepo.
func NewScanRepo(pool *pgxpool.Pool) *ScanRepo {
	return &ScanRepo{pool: pool}
}

var _ sensor.Recorder = (*ScanRepo)(nil)

// SaveScanData добавляет запись об измерении.
func (r *ScanRepo) SaveScanData(ctx context.Context, rec sensor.ScanRecord) error {
	var extraJSON []byte
	if len(rec.Extra) > 0 {
		var err error
		extraJSON, err = json.Marshal(rec.Extra)
		if err != nil {
			return fmt.Errorf("marshal extra: %w", err)
		}
	}

	query := `
		INSERT INTO sensor_scan_data (task_id, location_id, bed_name, timestamp, retry_count,
		                              status, bpm, rpm, is_valid, details, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.TaskID,
		nullString(rec.LocationID),
		nullString(rec.BedName),
		rec.Timestamp,
		rec.RetryCount,
		rec.Status,
		rec.BPM,
		rec.RPM,
		rec.IsValid,
		nullString(rec.Details),
		extraJSON,
	)
	if err != nil {
		return fmt.Errorf("insert scan data: %w", err)
	}
	return nil
}

// ListByTask возвращает измерения task в порядке записи.
func (r *ScanRepo) ListByTask(ctx context.Context, taskID string) ([]sensor.ScanRecord, error) {
	query := `
		SELECT task_id, location_id, bed_name, timestamp, retry_count,
		       status, bpm, rpm, is_valid, details, extra
		FROM sensor_scan_data
		WHERE task_id = $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list scan data: %w", err)
	}
	defer rows.Close()

	var records []sensor.ScanRecord
	for rows.Next() {
		var rec sensor.ScanRecord
		var location, bed, details *string
		var extraJSON []byte

		err := rows.Scan(
			&rec.TaskID,
			&location,
			&bed,
			&rec.Timestamp,
			&rec.RetryCount,
			&rec.Status,
			&rec.BPM,
			&rec.RPM,
			&rec.IsValid,
			&details,
			&extraJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scan data: %w", err)
		}

		rec.LocationID = deref(location)
		rec.BedName = deref(bed)
		rec.Details = deref(details)
		if extraJSON != nil {
			if err := json.Unmarshal(extraJSON, &rec.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal extra: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
