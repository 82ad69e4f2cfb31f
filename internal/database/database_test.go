package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenMigratesSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cinemarathon.db")

	db, err := Open(ctx, Config{Driver: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if db.Driver() != DriverSQLite {
		t.Fatalf("expected sqlite3 driver, got %s", db.Driver())
	}

	for _, table := range []string{"users", "marathons"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}

	// reopening an up-to-date schema is a no-op
	db2, err := Open(ctx, Config{DSN: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db2.Close()
}

func TestForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: filepath.Join(t.TempDir(), "fk.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO marathons (id, user_id, name, movies, total_minutes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"m1", "missing-user", "Night", "[]", 0, FormatTime(time.Now()))
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	query := `SELECT id FROM marathons WHERE user_id = ? AND id = ?`
	if got := Rebind(DriverSQLite, query); got != query {
		t.Fatalf("sqlite query should be unchanged, got %s", got)
	}
	want := `SELECT id FROM marathons WHERE user_id = $1 AND id = $2`
	if got := Rebind(DriverPostgres, query); got != want {
		t.Fatalf("Rebind = %s, want %s", got, want)
	}
}

func TestTimeRoundTripSortsLexically(t *testing.T) {
	early := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	late := early.Add(1500 * time.Millisecond)

	a, b := FormatTime(early), FormatTime(late)
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	parsed, err := ParseTime(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(late) {
		t.Fatalf("round trip = %v, want %v", parsed, late)
	}
	if _, err := ParseTime("2024-01-02T03:04:05+02:00"); err != nil {
		t.Fatalf("rfc3339 should parse: %v", err)
	}
}
