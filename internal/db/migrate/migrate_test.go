package migrate

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestRun_AppliesOnce(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	first, err := Run(ctx, db, logger)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(first) == 0 || first[0] != "0001" {
		t.Fatalf("applied = %v, want 0001 first", first)
	}

	second, err := Run(ctx, db, logger)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second Run applied %v, want nothing", second)
	}

	if _, err := db.Exec(`INSERT INTO samples (measurement, field, value, recorded_at) VALUES ('temperature', 'attic_temp', 19.5, '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("samples table not usable: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_samples_field_recorded_at'`).Scan(&n); err != nil || n != 1 {
		t.Errorf("index count = %d, err = %v", n, err)
	}
}

func TestFileRe(t *testing.T) {
	tests := map[string]bool{
		"0001_samples.sql": true,
		"0002_more.sql":    true,
		"1_bad.sql":        false,
		"0003_notes.txt":   false,
	}
	for name, want := range tests {
		if got := fileRe.MatchString(name); got != want {
			t.Errorf("fileRe.MatchString(%q) = %v, want %v", name, got, want)
		}
	}
}
