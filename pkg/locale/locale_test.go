package locale

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeCatalogs(t *testing.T, catalogs map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range catalogs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write catalog %s: %v", name, err)
		}
	}
	return dir
}

func TestManager(t *testing.T) {
	dir := writeCatalogs(t, map[string]string{
		"en.yaml": "greeting: \"Hello, %s!\"\nhelp: \"Available commands\"\n",
		"ru.yaml": "greeting: \"Привет, %s!\"\n",
	})

	m, err := New(dir, "en")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Run("direct hit", func(t *testing.T) {
		if got := m.Get("ru", "greeting"); got != "Привет, %s!" {
			t.Errorf("unexpected message: %s", got)
		}
	})

	t.Run("falls back to default language", func(t *testing.T) {
		if got := m.Get("ru", "help"); got != "Available commands" {
			t.Errorf("expected en fallback, got: %s", got)
		}
	})

	t.Run("falls back to key", func(t *testing.T) {
		if got := m.Get("en", "missing.key"); got != "missing.key" {
			t.Errorf("expected key fallback, got: %s", got)
		}
	})

	t.Run("unknown language uses default", func(t *testing.T) {
		if got := m.Get("de", "greeting"); got != "Hello, %s!" {
			t.Errorf("expected en message, got: %s", got)
		}
	})

	t.Run("format interpolates", func(t *testing.T) {
		if got := m.Format("en", "greeting", "alice"); got != "Hello, alice!" {
			t.Errorf("unexpected formatted message: %s", got)
		}
	})

	t.Run("languages sorted", func(t *testing.T) {
		if got := m.Languages(); !reflect.DeepEqual(got, []string{"en", "ru"}) {
			t.Errorf("unexpected languages: %v", got)
		}
	})

	t.Run("has", func(t *testing.T) {
		if !m.Has("en") || m.Has("de") {
			t.Error("unexpected Has results")
		}
	})
}

func TestNewErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		if _, err := New(filepath.Join(t.TempDir(), "nope"), "en"); err == nil {
			t.Error("expected error for missing directory")
		}
	})

	t.Run("missing default catalog", func(t *testing.T) {
		dir := writeCatalogs(t, map[string]string{"ru.yaml": "greeting: hi\n"})
		if _, err := New(dir, "en"); err == nil {
			t.Error("expected error for missing default catalog")
		}
	})

	t.Run("malformed catalog", func(t *testing.T) {
		dir := writeCatalogs(t, map[string]string{"en.yaml": "greeting: [broken\n"})
		if _, err := New(dir, "en"); err == nil {
			t.Error("expected error for malformed catalog")
		}
	})
}

func TestReload(t *testing.T) {
	dir := writeCatalogs(t, map[string]string{"en.yaml": "greeting: old\n"})

	m, err := New(dir, "en")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "en.yaml"), []byte("greeting: new\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite catalog: %v", err)
	}

	if err := m.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if got := m.Get("en", "greeting"); got != "new" {
		t.Errorf("expected reloaded message, got: %s", got)
	}
}
