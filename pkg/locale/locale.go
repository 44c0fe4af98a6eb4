// Package locale loads per-language translation catalogs and resolves
// message keys with fallback to the default language.
package locale

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager resolves translation keys against YAML catalogs.
//
// Catalogs live in a directory as <language>.yaml files with flat
// string-to-string mappings. Lookup falls back from the requested
// language to the default language, then to the key itself, so a
// missing translation never breaks a reply.
type Manager struct {
	mu         sync.RWMutex
	path       string
	defaultLng string
	catalogs   map[string]map[string]string
}

// New creates a manager and loads all catalogs from the directory.
func New(path, defaultLanguage string) (*Manager, error) {
	m := &Manager{
		path:       path,
		defaultLng: defaultLanguage,
	}

	if err := m.Reload(); err != nil {
		return nil, err
	}

	return m, nil
}

// Reload re-reads every catalog from disk, replacing the loaded set
// atomically. Unreadable or malformed files fail the whole reload so a
// bad deploy is caught at startup instead of surfacing as raw keys.
func (m *Manager) Reload() error {
	entries, err := os.ReadDir(m.path)
	if err != nil {
		return fmt.Errorf("failed to read locales directory %s: %w", m.path, err)
	}

	catalogs := make(map[string]map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		lang := entry.Name()[:len(entry.Name())-len(ext)]
		data, err := os.ReadFile(filepath.Join(m.path, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read catalog %s: %w", entry.Name(), err)
		}

		var catalog map[string]string
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return fmt.Errorf("failed to parse catalog %s: %w", entry.Name(), err)
		}

		catalogs[lang] = catalog
	}

	if _, ok := catalogs[m.defaultLng]; !ok {
		return fmt.Errorf("no catalog for default language %q in %s", m.defaultLng, m.path)
	}

	m.mu.Lock()
	m.catalogs = catalogs
	m.mu.Unlock()

	return nil
}

// Get resolves a key for the given language.
// Falls back to the default language, then to the key itself.
func (m *Manager) Get(language, key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if catalog, ok := m.catalogs[language]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}

	if catalog, ok := m.catalogs[m.defaultLng]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}

	return key
}

// Format resolves a key and interpolates it with fmt.Sprintf.
func (m *Manager) Format(language, key string, args ...interface{}) string {
	msg := m.Get(language, key)
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Languages returns the loaded language codes, sorted.
func (m *Manager) Languages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	langs := make([]string, 0, len(m.catalogs))
	for lang := range m.catalogs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Has reports whether a catalog exists for the language.
func (m *Manager) Has(language string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.catalogs[language]
	return ok
}

// DefaultLanguage returns the configured fallback language.
func (m *Manager) DefaultLanguage() string {
	return m.defaultLng
}
