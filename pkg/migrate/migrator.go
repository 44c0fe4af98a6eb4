// Package migrate bridges the blocking schema migration engine into the
// rest of the process and exposes revision inspection for CLI and API
// surfaces.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // registers the "sqlite" driver
	gomigrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/tgforge/tgforge/internal/logger"
	"github.com/tgforge/tgforge/pkg/store"
)

// Config configures the migrator.
type Config struct {
	// Database is the same configuration the store connects with.
	Database store.Config

	// Path is the directory holding migration scripts.
	Path string

	// Timeout bounds a single engine call. Default: 2m.
	Timeout time.Duration

	// Workers bounds concurrent engine calls. Default: 1.
	Workers int
}

// HistoryEntry describes one revision and whether it has been applied.
type HistoryEntry struct {
	Revision string `json:"revision"`
	Name     string `json:"name"`
	Applied  bool   `json:"applied"`
}

// Status is a point-in-time snapshot of schema state.
type Status struct {
	CurrentRevision string         `json:"current_revision,omitempty"`
	HeadRevision    string         `json:"head_revision,omitempty"`
	HasPending      bool           `json:"has_pending"`
	Dirty           bool           `json:"dirty"`
	History         []HistoryEntry `json:"history"`
}

// Migrator drives schema migrations for the user store.
//
// Revision state is never cached: the current revision is read from the
// database and the head revision from the script directory on every
// call, so edits between invocations are always observed. Engine calls
// run on a bounded worker pool so they never stall the caller's control
// flow; cross-process safety relies on the engine's own bookkeeping
// lock, not an extra lock here.
type Migrator struct {
	config Config
	pool   *Pool
}

// New creates a migrator. No connection is opened until an operation runs.
func New(config Config) (*Migrator, error) {
	config.Database.ApplyDefaults()
	if err := config.Database.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if config.Path == "" {
		config.Path = "migrations"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}

	return &Migrator{
		config: config,
		pool:   NewPool(config.Workers),
	}, nil
}

// openDB opens a database/sql connection for the engine. The store's
// GORM pool is not shared; the engine manages its own short-lived
// connection per operation.
func (m *Migrator) openDB() (*sql.DB, error) {
	switch m.config.Database.Type {
	case store.DatabaseTypeSQLite:
		if dir := filepath.Dir(m.config.Database.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sql.Open("sqlite", m.config.Database.SQLite.Path)
	case store.DatabaseTypePostgres:
		return sql.Open("pgx", m.config.Database.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.Database.Type)
	}
}

// openDriver wraps a connection in the engine driver for the configured
// backend.
func (m *Migrator) openDriver(db *sql.DB) (database.Driver, error) {
	switch m.config.Database.Type {
	case store.DatabaseTypeSQLite:
		return withSQLiteInstance(db, "schema_migrations", false)
	case store.DatabaseTypePostgres:
		return postgres.WithInstance(db, &postgres.Config{
			MigrationsTable: "schema_migrations",
			DatabaseName:    m.config.Database.Postgres.Database,
		})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.Database.Type)
	}
}

// newEngine builds a fresh engine instance over the script directory.
// The source is rebuilt per call so the head is always recomputed.
func (m *Migrator) newEngine(db *sql.DB) (*gomigrate.Migrate, error) {
	driver, err := m.openDriver(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(os.DirFS(m.config.Path), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration scripts from %s: %w", m.config.Path, err)
	}

	engine, err := gomigrate.NewWithInstance("iofs", src, string(m.config.Database.Type), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration engine: %w", err)
	}
	return engine, nil
}

// withEngine runs fn against a fresh engine on the worker pool, bounded
// by the configured timeout.
func (m *Migrator) withEngine(ctx context.Context, fn func(*gomigrate.Migrate) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	return m.pool.Run(ctx, func() error {
		db, err := m.openDB()
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		engine, err := m.newEngine(db)
		if err != nil {
			return err
		}

		return fn(engine)
	})
}

// CurrentRevision reads the bookkeeping row. It returns "" for an
// uninitialized schema; a connectivity failure is logged and also
// surfaces as "" so callers treat both identically.
func (m *Migrator) CurrentRevision(ctx context.Context) string {
	revision, _, err := m.readVersion(ctx)
	if err != nil {
		logger.Warn("Failed to read current schema revision", "error", err)
		return ""
	}
	return revision
}

// readVersion reads (revision, dirty) from the bookkeeping table.
func (m *Migrator) readVersion(ctx context.Context) (string, bool, error) {
	var (
		revision string
		dirty    bool
	)
	err := m.pool.Run(ctx, func() error {
		db, err := m.openDB()
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}

		driver, err := m.openDriver(db)
		if err != nil {
			return err
		}

		version, d, err := driver.Version()
		if err != nil {
			return err
		}
		dirty = d
		if version != database.NilVersion {
			revision = formatRevision(uint64(version))
		}
		return nil
	})
	return revision, dirty, err
}

// HeadRevision derives the newest revision from the script directory.
// Returns "" when no scripts exist. Duplicate revision numbers surface
// as ErrMultipleHeads.
func (m *Migrator) HeadRevision() (string, error) {
	revisions, err := scanScripts(m.config.Path)
	if err != nil {
		return "", err
	}
	if len(revisions) == 0 {
		return "", nil
	}
	return revisions[len(revisions)-1].ID(), nil
}

// HasPending reports whether the schema is behind the script head.
// An uninitialized schema with scripts on disk counts as pending.
func (m *Migrator) HasPending(ctx context.Context) (bool, error) {
	head, err := m.HeadRevision()
	if err != nil {
		return false, err
	}
	if head == "" {
		return false, nil
	}
	return m.CurrentRevision(ctx) != head, nil
}

// Apply upgrades the schema to head. A no-op at head is success.
func (m *Migrator) Apply(ctx context.Context) error {
	logger.Info("Applying migrations", "path", m.config.Path)

	err := m.withEngine(ctx, func(engine *gomigrate.Migrate) error {
		if err := engine.Up(); err != nil && !errors.Is(err, gomigrate.ErrNoChange) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Schema at head", "revision", m.CurrentRevision(ctx))
	return nil
}

// Rollback reverts the given number of revisions. Steps must be positive.
func (m *Migrator) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}

	logger.Info("Rolling back migrations", "steps", steps)

	err := m.withEngine(ctx, func(engine *gomigrate.Migrate) error {
		if err := engine.Steps(-steps); err != nil && !errors.Is(err, gomigrate.ErrNoChange) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	logger.Info("Rollback complete", "revision", m.CurrentRevision(ctx))
	return nil
}

// Stamp records the given revision in the bookkeeping table without
// running any scripts, clearing a dirty flag if set.
func (m *Migrator) Stamp(ctx context.Context, revision string) error {
	version, err := parseRevision(revision)
	if err != nil {
		return err
	}

	logger.Info("Stamping schema revision", "revision", formatRevision(version))

	err = m.withEngine(ctx, func(engine *gomigrate.Migrate) error {
		return engine.Force(int(version))
	})
	if err != nil {
		return fmt.Errorf("stamp failed: %w", err)
	}
	return nil
}

var nameSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// Create writes a new pair of empty up/down scripts named after message
// and returns their paths. The revision number is head+1.
func (m *Migrator) Create(message string) ([]string, error) {
	revisions, err := scanScripts(m.config.Path)
	if err != nil {
		return nil, err
	}

	var next uint64 = 1
	if len(revisions) > 0 {
		next = revisions[len(revisions)-1].Version + 1
	}

	name := strings.Trim(nameSanitizer.ReplaceAllString(strings.ToLower(message), "_"), "_")
	if name == "" {
		return nil, fmt.Errorf("migration message must contain at least one word")
	}

	if err := os.MkdirAll(m.config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	prefix := fmt.Sprintf("%s_%s", formatRevision(next), name)
	paths := []string{
		filepath.Join(m.config.Path, prefix+".up.sql"),
		filepath.Join(m.config.Path, prefix+".down.sql"),
	}
	header := fmt.Sprintf("-- %s\n", message)
	for _, path := range paths {
		if err := os.WriteFile(path, []byte(header), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	logger.Info("Created migration scripts", "revision", formatRevision(next), "name", name)
	return paths, nil
}

// History lists every on-disk revision with its applied state.
func (m *Migrator) History(ctx context.Context) ([]HistoryEntry, error) {
	revisions, err := scanScripts(m.config.Path)
	if err != nil {
		return nil, err
	}

	current := m.CurrentRevision(ctx)
	entries := make([]HistoryEntry, 0, len(revisions))
	for _, rev := range revisions {
		entries = append(entries, HistoryEntry{
			Revision: rev.ID(),
			Name:     rev.Name,
			Applied:  current != "" && rev.ID() <= current,
		})
	}
	return entries, nil
}

// Status snapshots the full schema state for CLI and API surfaces.
func (m *Migrator) Status(ctx context.Context) (*Status, error) {
	head, err := m.HeadRevision()
	if err != nil {
		return nil, err
	}

	current, dirty, err := m.readVersion(ctx)
	if err != nil {
		logger.Warn("Failed to read current schema revision", "error", err)
		current, dirty = "", false
	}

	history, err := m.History(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		CurrentRevision: current,
		HeadRevision:    head,
		HasPending:      head != "" && current != head,
		Dirty:           dirty,
		History:         history,
	}, nil
}

// EnsureDatabaseReady is the orchestration entrypoint called during
// startup. It reports whether the schema is usable:
//
//   - no scripts on disk: ready, nothing to manage
//   - schema at head: ready
//   - schema behind head, autoMigrate on: apply, ready iff apply succeeds
//   - schema behind head, autoMigrate off: not ready, warning logged
//
// An apply failure is returned to the caller and is fatal to startup.
func (m *Migrator) EnsureDatabaseReady(ctx context.Context, autoMigrate bool) (bool, error) {
	head, err := m.HeadRevision()
	if err != nil {
		return false, err
	}
	if head == "" {
		logger.Debug("No migration scripts found, schema is unmanaged", "path", m.config.Path)
		return true, nil
	}

	current := m.CurrentRevision(ctx)
	if current == head {
		logger.Debug("Schema is at head", "revision", current)
		return true, nil
	}
	if current > head {
		// Scripts were removed after being applied. Nothing to run.
		logger.Warn("Schema revision is ahead of on-disk scripts",
			"current", current, "head", head)
		return true, nil
	}

	if !autoMigrate {
		logger.Warn("Schema has pending migrations and auto-migrate is disabled",
			"current", current, "head", head)
		return false, nil
	}

	if err := m.Apply(ctx); err != nil {
		return false, err
	}
	return true, nil
}
