// Package journal records published fields in the SQLite samples table.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Writer struct {
	db  *sql.DB
	now func() time.Time
}

// New expects a database already migrated by internal/db/migrate.
func New(db *sql.DB) *Writer {
	return &Writer{db: db, now: time.Now}
}

func (w *Writer) Write(ctx context.Context, measurement, field string, value float64) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO samples (measurement, field, value, recorded_at) VALUES (?, ?, ?, ?)`,
		measurement, field, value, w.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal insert %s: %w", field, err)
	}
	return nil
}

// Sample is one stored row.
type Sample struct {
	Measurement string
	Field       string
	Value       float64
	RecordedAt  time.Time
}

// Latest returns the newest sample per field, ordered by field.
func (w *Writer) Latest(ctx context.Context) ([]Sample, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT s.measurement, s.field, s.value, s.recorded_at
		FROM samples s
		JOIN (SELECT field, MAX(id) AS id FROM samples GROUP BY field) l ON l.id = s.id
		ORDER BY s.field`)
	if err != nil {
		return nil, fmt.Errorf("journal latest: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			s  Sample
			ts string
		)
		if err := rows.Scan(&s.Measurement, &s.Field, &s.Value, &ts); err != nil {
			return nil, err
		}
		if s.RecordedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("journal latest: bad timestamp %q: %w", ts, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (w *Writer) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *Writer) Close() error {
	return w.db.Close()
}
