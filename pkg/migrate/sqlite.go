package migrate

import (
	"database/sql"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4/database"
)

// sqliteDriver is a golang-migrate database driver over an existing
// database/sql connection using the pure-Go SQLite driver the store
// already depends on. The upstream sqlite driver pulls in a second
// SQLite implementation that registers the same driver name, so we
// carry this small one instead.
type sqliteDriver struct {
	db       *sql.DB
	locked   atomic.Bool
	table    string
	ownsConn bool
}

// withSQLiteInstance wraps an open connection as a migration driver and
// ensures the bookkeeping table exists.
func withSQLiteInstance(db *sql.DB, table string, ownsConn bool) (database.Driver, error) {
	if table == "" {
		table = "schema_migrations"
	}

	d := &sqliteDriver{db: db, table: table, ownsConn: ownsConn}
	if err := d.ensureVersionTable(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *sqliteDriver) ensureVersionTable() error {
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version uint64, dirty bool)", d.table)
	if _, err := d.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// Open is unused; instances are created with withSQLiteInstance.
func (d *sqliteDriver) Open(string) (database.Driver, error) {
	return nil, fmt.Errorf("sqlite driver: Open not supported, use withSQLiteInstance")
}

func (d *sqliteDriver) Close() error {
	if d.ownsConn {
		return d.db.Close()
	}
	return nil
}

// Lock is in-process only. Cross-process safety comes from SQLite's own
// write locking plus the dirty flag in the bookkeeping table.
func (d *sqliteDriver) Lock() error {
	if !d.locked.CompareAndSwap(false, true) {
		return database.ErrLocked
	}
	return nil
}

func (d *sqliteDriver) Unlock() error {
	if !d.locked.CompareAndSwap(true, false) {
		return database.ErrNotLocked
	}
	return nil
}

func (d *sqliteDriver) Run(migration io.Reader) error {
	script, err := io.ReadAll(migration)
	if err != nil {
		return fmt.Errorf("failed to read migration: %w", err)
	}

	if _, err := d.db.Exec(string(script)); err != nil {
		return database.Error{OrigErr: err, Err: "migration failed", Query: script}
	}
	return nil
}

func (d *sqliteDriver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin version transaction: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", d.table)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear version: %w", err)
	}

	// version -1 means "no version", matching database.NilVersion
	if version >= 0 || (version == database.NilVersion && dirty) {
		query := fmt.Sprintf("INSERT INTO %s (version, dirty) VALUES (?, ?)", d.table)
		if _, err := tx.Exec(query, version, dirty); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set version: %w", err)
		}
	}

	return tx.Commit()
}

func (d *sqliteDriver) Version() (int, bool, error) {
	var (
		version int
		dirty   bool
	)
	query := fmt.Sprintf("SELECT version, dirty FROM %s LIMIT 1", d.table)
	err := d.db.QueryRow(query).Scan(&version, &dirty)
	switch {
	case err == sql.ErrNoRows:
		return database.NilVersion, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to read version: %w", err)
	default:
		return version, dirty, nil
	}
}

func (d *sqliteDriver) Drop() error {
	rows, err := d.db.Query(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	for _, table := range tables {
		if _, err := d.db.Exec("DROP TABLE " + table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
