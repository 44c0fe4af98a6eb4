package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tgforge/tgforge/pkg/store"
)

const (
	usersUp   = "CREATE TABLE users (user_id INTEGER PRIMARY KEY, username VARCHAR(255), language VARCHAR(10) NOT NULL DEFAULT 'en', created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP, updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP);"
	usersDown = "DROP TABLE users;"
	indexUp   = "CREATE INDEX idx_users_language ON users (language);"
	indexDown = "DROP INDEX idx_users_language;"
)

// newTestMigrator builds a migrator over a temp SQLite database and a
// temp script directory populated from scripts (filename -> SQL).
func newTestMigrator(t *testing.T, scripts map[string]string) *Migrator {
	t.Helper()

	scriptDir := t.TempDir()
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(scriptDir, name), []byte(body), 0644); err != nil {
			t.Fatalf("failed to write script %s: %v", name, err)
		}
	}

	m, err := New(Config{
		Database: store.Config{
			Type:   store.DatabaseTypeSQLite,
			SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
		},
		Path:    scriptDir,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func twoScripts() map[string]string {
	return map[string]string{
		"0001_create_users.up.sql":   usersUp,
		"0001_create_users.down.sql": usersDown,
		"0002_add_index.up.sql":      indexUp,
		"0002_add_index.down.sql":    indexDown,
	}
}

func TestHeadRevision(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		m := newTestMigrator(t, nil)
		head, err := m.HeadRevision()
		if err != nil {
			t.Fatalf("HeadRevision failed: %v", err)
		}
		if head != "" {
			t.Errorf("expected empty head, got %q", head)
		}
	})

	t.Run("newest script wins", func(t *testing.T) {
		m := newTestMigrator(t, twoScripts())
		head, err := m.HeadRevision()
		if err != nil {
			t.Fatalf("HeadRevision failed: %v", err)
		}
		if head != "0002" {
			t.Errorf("expected head 0002, got %q", head)
		}
	})

	t.Run("duplicate revision is a hard error", func(t *testing.T) {
		m := newTestMigrator(t, map[string]string{
			"0001_create_users.up.sql": usersUp,
			"0001_other_thing.up.sql":  indexUp,
		})
		if _, err := m.HeadRevision(); !errors.Is(err, ErrMultipleHeads) {
			t.Errorf("expected ErrMultipleHeads, got %v", err)
		}
	})

	t.Run("recomputed after new script appears", func(t *testing.T) {
		m := newTestMigrator(t, twoScripts())

		path := filepath.Join(m.config.Path, "0003_more.up.sql")
		if err := os.WriteFile(path, []byte("CREATE TABLE more (id INTEGER);"), 0644); err != nil {
			t.Fatalf("failed to add script: %v", err)
		}

		head, err := m.HeadRevision()
		if err != nil {
			t.Fatalf("HeadRevision failed: %v", err)
		}
		if head != "0003" {
			t.Errorf("expected head 0003 after adding a script, got %q", head)
		}
	})
}

func TestApplyAndRollback(t *testing.T) {
	m := newTestMigrator(t, twoScripts())
	ctx := context.Background()

	if current := m.CurrentRevision(ctx); current != "" {
		t.Fatalf("expected uninitialized schema, got %q", current)
	}

	if err := m.Apply(ctx); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if current := m.CurrentRevision(ctx); current != "0002" {
		t.Errorf("expected current 0002 after apply, got %q", current)
	}

	t.Run("apply at head is a no-op", func(t *testing.T) {
		if err := m.Apply(ctx); err != nil {
			t.Errorf("Apply at head failed: %v", err)
		}
	})

	t.Run("rollback one step", func(t *testing.T) {
		if err := m.Rollback(ctx, 1); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}
		if current := m.CurrentRevision(ctx); current != "0001" {
			t.Errorf("expected current 0001 after rollback, got %q", current)
		}
	})

	t.Run("rollback rejects non-positive steps", func(t *testing.T) {
		if err := m.Rollback(ctx, 0); err == nil {
			t.Error("expected error for zero steps")
		}
	})

	t.Run("failed script reported", func(t *testing.T) {
		bad := newTestMigrator(t, map[string]string{
			"0001_broken.up.sql": "THIS IS NOT SQL;",
		})
		if err := bad.Apply(ctx); err == nil {
			t.Error("expected error from broken script")
		}
	})
}

func TestHasPending(t *testing.T) {
	ctx := context.Background()

	t.Run("uninitialized schema with scripts is pending", func(t *testing.T) {
		m := newTestMigrator(t, twoScripts())
		pending, err := m.HasPending(ctx)
		if err != nil {
			t.Fatalf("HasPending failed: %v", err)
		}
		if !pending {
			t.Error("expected pending")
		}
	})

	t.Run("no scripts is never pending", func(t *testing.T) {
		m := newTestMigrator(t, nil)
		pending, err := m.HasPending(ctx)
		if err != nil {
			t.Fatalf("HasPending failed: %v", err)
		}
		if pending {
			t.Error("expected not pending")
		}
	})

	t.Run("at head is not pending", func(t *testing.T) {
		m := newTestMigrator(t, twoScripts())
		if err := m.Apply(ctx); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		pending, err := m.HasPending(ctx)
		if err != nil {
			t.Fatalf("HasPending failed: %v", err)
		}
		if pending {
			t.Error("expected not pending at head")
		}
	})
}

func TestStamp(t *testing.T) {
	m := newTestMigrator(t, twoScripts())
	ctx := context.Background()

	if err := m.Stamp(ctx, "0002"); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	if current := m.CurrentRevision(ctx); current != "0002" {
		t.Errorf("expected current 0002 after stamp, got %q", current)
	}

	// Stamping skipped the scripts, so the schema itself is empty.
	pending, err := m.HasPending(ctx)
	if err != nil {
		t.Fatalf("HasPending failed: %v", err)
	}
	if pending {
		t.Error("expected not pending after stamping head")
	}

	t.Run("unpadded revision accepted", func(t *testing.T) {
		if err := m.Stamp(ctx, "1"); err != nil {
			t.Fatalf("Stamp failed: %v", err)
		}
		if current := m.CurrentRevision(ctx); current != "0001" {
			t.Errorf("expected current 0001, got %q", current)
		}
	})

	t.Run("garbage revision rejected", func(t *testing.T) {
		if err := m.Stamp(ctx, "abc"); err == nil {
			t.Error("expected error for non-numeric revision")
		}
	})
}

func TestCreate(t *testing.T) {
	m := newTestMigrator(t, twoScripts())

	paths, err := m.Create("Add Audit Log!")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}

	for _, path := range paths {
		base := filepath.Base(path)
		if base != "0003_add_audit_log.up.sql" && base != "0003_add_audit_log.down.sql" {
			t.Errorf("unexpected script name: %s", base)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("script not written: %v", err)
		}
	}

	head, err := m.HeadRevision()
	if err != nil {
		t.Fatalf("HeadRevision failed: %v", err)
	}
	if head != "0003" {
		t.Errorf("expected new head 0003, got %q", head)
	}

	t.Run("empty message rejected", func(t *testing.T) {
		if _, err := m.Create("!!!"); err == nil {
			t.Error("expected error for message without words")
		}
	})
}

func TestHistoryAndStatus(t *testing.T) {
	m := newTestMigrator(t, twoScripts())
	ctx := context.Background()

	if err := m.Stamp(ctx, "0001"); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}

	history, err := m.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if !history[0].Applied || history[0].Revision != "0001" {
		t.Errorf("expected 0001 applied, got %+v", history[0])
	}
	if history[1].Applied || history[1].Revision != "0002" {
		t.Errorf("expected 0002 pending, got %+v", history[1])
	}

	status, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CurrentRevision != "0001" || status.HeadRevision != "0002" {
		t.Errorf("unexpected status: %+v", status)
	}
	if !status.HasPending || status.Dirty {
		t.Errorf("unexpected status flags: %+v", status)
	}
}

// TestEnsureDatabaseReady exercises every (current, head, autoMigrate)
// combination of the startup readiness policy.
func TestEnsureDatabaseReady(t *testing.T) {
	ctx := context.Background()

	t.Run("no scripts, uninitialized schema", func(t *testing.T) {
		for _, auto := range []bool{true, false} {
			m := newTestMigrator(t, nil)
			ready, err := m.EnsureDatabaseReady(ctx, auto)
			if err != nil {
				t.Fatalf("auto=%v: unexpected error: %v", auto, err)
			}
			if !ready {
				t.Errorf("auto=%v: expected ready", auto)
			}
		}
	})

	t.Run("uninitialized schema, auto on applies", func(t *testing.T) {
		m := newTestMigrator(t, map[string]string{
			"0001_create_users.up.sql":   usersUp,
			"0001_create_users.down.sql": usersDown,
		})

		ready, err := m.EnsureDatabaseReady(ctx, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ready {
			t.Error("expected ready after apply")
		}

		current := m.CurrentRevision(ctx)
		head, _ := m.HeadRevision()
		if current != head || current != "0001" {
			t.Errorf("expected current == head == 0001, got current=%q head=%q", current, head)
		}
	})

	t.Run("uninitialized schema, auto off is not ready", func(t *testing.T) {
		m := newTestMigrator(t, twoScripts())
		ready, err := m.EnsureDatabaseReady(ctx, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ready {
			t.Error("expected not ready with auto-migrate off")
		}
		if current := m.CurrentRevision(ctx); current != "" {
			t.Errorf("expected untouched schema, got %q", current)
		}
	})

	t.Run("at head is ready regardless of auto", func(t *testing.T) {
		for _, auto := range []bool{true, false} {
			m := newTestMigrator(t, twoScripts())
			if err := m.Apply(ctx); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}

			ready, err := m.EnsureDatabaseReady(ctx, auto)
			if err != nil {
				t.Fatalf("auto=%v: unexpected error: %v", auto, err)
			}
			if !ready {
				t.Errorf("auto=%v: expected ready at head", auto)
			}
		}
	})

	t.Run("behind head, auto on applies", func(t *testing.T) {
		m := newTestMigrator(t, twoScripts())
		if err := m.Apply(ctx); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if err := m.Rollback(ctx, 1); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}

		ready, err := m.EnsureDatabaseReady(ctx, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ready {
			t.Error("expected ready after catching up")
		}
		if current := m.CurrentRevision(ctx); current != "0002" {
			t.Errorf("expected current 0002, got %q", current)
		}
	})

	t.Run("behind head, auto off is not ready", func(t *testing.T) {
		m := newTestMigrator(t, twoScripts())
		if err := m.Apply(ctx); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if err := m.Rollback(ctx, 1); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}

		ready, err := m.EnsureDatabaseReady(ctx, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ready {
			t.Error("expected not ready with auto-migrate off")
		}
	})

	t.Run("broken script surfaces as fatal error", func(t *testing.T) {
		m := newTestMigrator(t, map[string]string{
			"0001_broken.up.sql": "THIS IS NOT SQL;",
		})
		ready, err := m.EnsureDatabaseReady(ctx, true)
		if err == nil {
			t.Fatal("expected error from broken script")
		}
		if ready {
			t.Error("expected not ready on apply failure")
		}
	})

	t.Run("duplicate revisions are a configuration error", func(t *testing.T) {
		m := newTestMigrator(t, map[string]string{
			"0001_create_users.up.sql": usersUp,
			"0001_other_thing.up.sql":  indexUp,
		})
		if _, err := m.EnsureDatabaseReady(ctx, true); !errors.Is(err, ErrMultipleHeads) {
			t.Errorf("expected ErrMultipleHeads, got %v", err)
		}
	})
}

func TestPool(t *testing.T) {
	t.Run("runs the function", func(t *testing.T) {
		p := NewPool(1)
		ran := false
		if err := p.Run(context.Background(), func() error {
			ran = true
			return nil
		}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !ran {
			t.Error("expected function to run")
		}
	})

	t.Run("propagates errors", func(t *testing.T) {
		p := NewPool(1)
		want := fmt.Errorf("boom")
		if err := p.Run(context.Background(), func() error { return want }); !errors.Is(err, want) {
			t.Errorf("expected boom, got %v", err)
		}
	})

	t.Run("cancelled context while saturated", func(t *testing.T) {
		p := NewPool(1)
		release := make(chan struct{})
		started := make(chan struct{})

		go func() {
			_ = p.Run(context.Background(), func() error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := p.Run(ctx, func() error { return nil })
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		close(release)
	})

	t.Run("cancelled context mid-call returns early", func(t *testing.T) {
		p := NewPool(1)
		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := p.Run(ctx, func() error {
			<-release
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestSQLiteDriver(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "driver.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	driver, err := withSQLiteInstance(db, "", false)
	if err != nil {
		t.Fatalf("withSQLiteInstance failed: %v", err)
	}

	t.Run("fresh database has nil version", func(t *testing.T) {
		version, dirty, err := driver.Version()
		if err != nil {
			t.Fatalf("Version failed: %v", err)
		}
		if version != -1 || dirty {
			t.Errorf("expected nil version, got %d dirty=%v", version, dirty)
		}
	})

	t.Run("set and read version", func(t *testing.T) {
		if err := driver.SetVersion(2, false); err != nil {
			t.Fatalf("SetVersion failed: %v", err)
		}
		version, dirty, err := driver.Version()
		if err != nil {
			t.Fatalf("Version failed: %v", err)
		}
		if version != 2 || dirty {
			t.Errorf("expected version 2 clean, got %d dirty=%v", version, dirty)
		}
	})

	t.Run("lock is exclusive", func(t *testing.T) {
		if err := driver.Lock(); err != nil {
			t.Fatalf("Lock failed: %v", err)
		}
		if err := driver.Lock(); err == nil {
			t.Error("expected second Lock to fail")
		}
		if err := driver.Unlock(); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}
	})
}
