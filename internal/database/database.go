// Package database opens the backend SQL store and applies the embedded
// schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"cinemarathon/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// TimeLayout is the fixed-width UTC layout used for timestamp columns so they
// sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Config selects the driver and data source. For sqlite3 the DSN is a file path.
type Config struct {
	Driver       string `json:"driver" yaml:"driver"`
	DSN          string `json:"dsn" yaml:"dsn"`
	MaxOpenConns int    `json:"maxOpenConns,omitempty" yaml:"maxOpenConns,omitempty"`
}

// DB is a migrated connection pool that knows its placeholder style.
type DB struct {
	*sql.DB
	driver string
}

// Open connects, verifies the connection and migrates the schema to the latest version.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "sqlite" {
		driver = DriverSQLite
	}

	var (
		dsn     string
		dialect goose.Dialect
	)
	switch driver {
	case DriverSQLite:
		path := strings.TrimSpace(cfg.DSN)
		if path == "" {
			return nil, errors.New("sqlite database path is required")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
		dialect = goose.DialectSQLite3
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 1
		}
	case DriverPostgres:
		dsn = cfg.DSN
		dialect = goose.DialectPostgres
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 10
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := migrate(ctx, sqlDB, dialect); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &DB{DB: sqlDB, driver: driver}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger := logging.WithComponent("database")
	for _, res := range results {
		logger.Info().
			Int64("version", res.Source.Version).
			Dur("duration", res.Duration).
			Msg("applied migration")
	}
	return nil
}

// Driver returns the driver name the pool was opened with.
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites ? placeholders into the driver's style.
func (db *DB) Rebind(query string) string {
	return Rebind(db.driver, query)
}

// Rebind rewrites ? placeholders into $1, $2, ... for postgres and leaves
// other drivers untouched.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a TimeLayout column, also accepting RFC 3339.
func ParseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}
