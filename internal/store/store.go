package store

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DefaultURL is used when no database URL is configured.
const DefaultURL = "sqlite://jobinbox.db"

// Store persists listings and the run ledger in SQLite or PostgreSQL.
type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// Open connects to the database named by url and ensures the schema exists.
// postgres:// and postgresql:// URLs use pgx; sqlite:// URLs and bare paths use SQLite.
func Open(ctx context.Context, url string) (*Store, error) {
	driver, dsn, d := parseURL(url)

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	// Verify the connection is alive.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s db: %w", driver, err)
	}

	s := newStore(db, d)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *sqlx.DB, d dialect) *Store {
	return &Store{db: db, dialect: d}
}

func parseURL(url string) (driver, dsn string, d dialect) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx", url, dialectPostgres
	case url == "":
		url = DefaultURL
	}

	path := strings.TrimPrefix(url, "sqlite://")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	// Store times in SQLite's own format so they scan back into time.Time.
	// Write transactions take the lock at BEGIN so a status update waits out
	// a committing run instead of failing on lock upgrade.
	dsn = path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate&_time_format=sqlite"
	return "sqlite", dsn, dialectSQLite
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.dialect == dialectPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id               TEXT PRIMARY KEY,
		owner            TEXT NOT NULL DEFAULT '',
		started_at       DATETIME NOT NULL,
		finished_at      DATETIME,
		source_filter    TEXT NOT NULL DEFAULT '',
		requested_window TEXT NOT NULL DEFAULT '',
		new_record_count INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		error_message    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS listings (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		owner            TEXT NOT NULL DEFAULT '',
		origin_url       TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		company          TEXT NOT NULL DEFAULT '',
		location         TEXT NOT NULL DEFAULT '',
		posted_date      TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		source           TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'inbox',
		loaded_at        DATETIME NOT NULL,
		application_date DATETIME,
		run_id           TEXT NOT NULL,
		UNIQUE (owner, origin_url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_owner_status ON listings (owner, status)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_owner_started ON runs (owner, started_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id               TEXT PRIMARY KEY,
		owner            TEXT NOT NULL DEFAULT '',
		started_at       TIMESTAMPTZ NOT NULL,
		finished_at      TIMESTAMPTZ,
		source_filter    TEXT NOT NULL DEFAULT '',
		requested_window TEXT NOT NULL DEFAULT '',
		new_record_count INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		error_message    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS listings (
		id               BIGSERIAL PRIMARY KEY,
		owner            TEXT NOT NULL DEFAULT '',
		origin_url       TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		company          TEXT NOT NULL DEFAULT '',
		location         TEXT NOT NULL DEFAULT '',
		posted_date      TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		source           TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'inbox',
		loaded_at        TIMESTAMPTZ NOT NULL,
		application_date TIMESTAMPTZ,
		run_id           TEXT NOT NULL,
		UNIQUE (owner, origin_url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_owner_status ON listings (owner, status)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_owner_started ON runs (owner, started_at)`,
}
