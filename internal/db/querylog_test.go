package db

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
)

// captureHandler keeps every record's message and attributes.
type captureHandler struct {
	mu   sync.Mutex
	recs []map[string]slog.Value
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.mu.Lock()
	h.recs = append(h.recs, m)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) last(t *testing.T) map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.recs) - 1; i >= 0; i-- {
		if h.recs[i]["msg"].String() == "sql" {
			return h.recs[i]
		}
	}
	t.Fatal("no sql record logged")
	return nil
}

func openLogged(t *testing.T) (*sql.DB, *captureHandler) {
	t.Helper()
	h := &captureHandler{}
	db, err := Open(Options{
		Path:         filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns: 1,
		LogQueries:   true,
	}, slog.New(h))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, h
}

func TestQueryLog_Exec(t *testing.T) {
	db, h := openLogged(t)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if got := h.last(t)["op"].String(); got != "exec" {
		t.Errorf("op = %q, want exec", got)
	}

	if _, err := db.Exec(`INSERT INTO t (id, name) VALUES (?, ?)`, 1, "bedroom"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec := h.last(t)
	if rec["sql"].String() != `INSERT INTO t (id, name) VALUES (?, ?)` {
		t.Errorf("sql = %q", rec["sql"].String())
	}
	args, ok := rec["args"].Any().([]string)
	if !ok || len(args) != 2 || args[0] != "1" || args[1] != "bedroom" {
		t.Errorf("args = %v", rec["args"])
	}
}

func TestQueryLog_Query(t *testing.T) {
	db, h := openLogged(t)

	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query row: %v", err)
	}
	rec := h.last(t)
	if rec["op"].String() != "query" || rec["sql"].String() != `SELECT 1` {
		t.Errorf("record = %v", rec)
	}
}

func TestQueryLog_MultiStatementExec(t *testing.T) {
	db, _ := openLogged(t)

	if _, err := db.Exec(`CREATE TABLE a (x INTEGER); CREATE TABLE b (y INTEGER);`); err != nil {
		t.Fatalf("exec script: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO b (y) VALUES (1)`); err != nil {
		t.Fatalf("second table missing: %v", err)
	}
}

func TestQueryLog_DirectOpenRejected(t *testing.T) {
	c := NewQueryLogConnector("file:x.db", nil)
	if _, err := c.Driver().Open("file:x.db"); err == nil {
		t.Fatal("Driver().Open() error = nil, want error")
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name, path, want string
	}{
		{name: "plain", path: "journal.db", want: "file:journal.db?_busy_timeout=5000&_journal_mode=WAL"},
		{name: "file uri", path: "file:journal.db", want: "file:journal.db?_busy_timeout=5000&_journal_mode=WAL"},
		{name: "file uri with params", path: "file:journal.db?mode=rwc", want: "file:journal.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.path)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}

	if _, err := buildDSN(""); err == nil {
		t.Error("buildDSN(\"\") error = nil, want error")
	}
}
