// Package data keeps the history of scoring runs in sqlite or postgres.
package data

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	// DataFileName is the default sqlite file name.
	DataFileName = "qscore.db"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Store wraps a history database and the dialect its queries are written in.
type Store struct {
	db     *sql.DB
	driver string
}

// Driver returns the database/sql driver name for dsn. URLs with a postgres
// scheme and key=value connection strings go to postgres, anything else is a
// sqlite file path.
func Driver(dsn string) string {
	d := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return DriverPostgres
	case strings.Contains(d, "host=") && strings.Contains(d, "dbname="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// GetDB opens the database at dsn without touching the schema.
func GetDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("database DSN not specified")
	}
	driver := Driver(dsn)
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// single writer, avoids SQLITE_BUSY between pooled connections
		conn.SetMaxOpenConns(1)
	}
	return conn, nil
}

// Open connects to dsn and applies the schema. Applying it again is a no-op.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := GetDB(dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, driver: Driver(dsn)}

	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to %s database: %w", s.driver, err)
	}

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	slog.Debug("db schema ready", "driver", s.driver)
	return nil
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Driver returns the store's driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
