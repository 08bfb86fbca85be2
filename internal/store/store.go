package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/dotsql"

	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

//go:embed queries.sql
var queriesSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on transferrecord(recipient_id, start_time)
// 2 - Added organizationtype.job_name_list
const currentSchemaVersion = 2

var (
	// ErrNotFound indicates a lookup that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTransfer indicates a transfer record id already present.
	ErrDuplicateTransfer = errors.New("duplicate transfer")
)

// conn holds what both the store and its transactions execute against.
// Methods on conn are promoted to Store and Tx.
type conn struct {
	ext      sqlx.ExtContext
	dot      *dotsql.DotSql
	compiler *querysql.SQLCompiler
}

// Store provides durable storage for organization records.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	conn
	db *sqlx.DB
}

// Tx is a store bound to one database transaction.
type Tx struct {
	conn
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically. Compiled queries
// resolve paths against reg.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, reg *model.Registry) (*Store, error) {
	if reg == nil {
		return nil, fmt.Errorf("open store: nil model registry")
	}

	// Open database (creates file if doesn't exist)
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1) // Keep one connection ready

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	dot, err := dotsql.LoadFromString(queriesSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Store{
		conn: conn{ext: db, dot: dot, compiler: querysql.NewSQLCompiler(reg)},
		db:   db,
	}, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sqlx.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise. fn must only use the Tx it is given: the pool
// holds a single connection, so calls on the Store would block.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &Tx{conn: conn{ext: sqlTx, dot: s.dot, compiler: s.compiler}}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Registry returns the models compiled queries resolve against.
func (c *conn) Registry() *model.Registry {
	return c.compiler.Registry
}

// raw returns a named query, rebound for the driver.
func (c *conn) raw(name string) (string, error) {
	query, err := c.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return c.ext.Rebind(query), nil
}

// exec runs a named statement.
func (c *conn) exec(ctx context.Context, name string, args ...any) (int64, error) {
	query, err := c.raw(name)
	if err != nil {
		return 0, err
	}
	res, err := c.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return res.LastInsertId()
}

// selectNamed runs a named query into dest, a pointer to a slice.
func (c *conn) selectNamed(ctx context.Context, name string, dest any, args ...any) error {
	query, err := c.raw(name)
	if err != nil {
		return err
	}
	if err := sqlx.SelectContext(ctx, c.ext, dest, query, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes transfers by recipient for per-account history.
func migrateToV1(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transferrecord_recipient
		ON transferrecord(recipient_id, start_time)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 adds rank titles to organization types. Tables created by
// the current schema already have the column.
func migrateToV2(db *sqlx.DB) error {
	var columns []string
	if err := db.Select(&columns, "SELECT name FROM pragma_table_info('organizationtype')"); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	for _, col := range columns {
		if col == "job_name_list" {
			return nil
		}
	}
	_, err := db.Exec(`ALTER TABLE organizationtype ADD COLUMN job_name_list TEXT NOT NULL DEFAULT '[]'`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// isConstraintViolation reports whether err is a SQLite UNIQUE or
// PRIMARY KEY violation.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
