package migrate

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
)

// ErrMultipleHeads means two scripts claim the same revision number.
// This is a hard configuration error; the engine never picks one
// arbitrarily.
var ErrMultipleHeads = errors.New("multiple migration scripts share a revision number")

// scriptPattern matches golang-migrate style script names:
// 0001_create_users.up.sql / 0001_create_users.down.sql
var scriptPattern = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// Revision is one entry in the on-disk migration history.
type Revision struct {
	Version uint64
	Name    string
	HasDown bool
}

// ID returns the zero-padded revision identifier, e.g. "0001".
func (r Revision) ID() string {
	return fmt.Sprintf("%04d", r.Version)
}

// formatRevision renders a raw engine version as a revision identifier.
func formatRevision(version uint64) string {
	return fmt.Sprintf("%04d", version)
}

// parseRevision accepts "0001" or "1" and returns the numeric version.
func parseRevision(id string) (uint64, error) {
	version, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid revision %q: %w", id, err)
	}
	return version, nil
}

// scanScripts reads the migration directory and returns the revision
// history in ascending order.
//
// The directory is re-read on every call so edits between invocations
// are always observed. Duplicate revision numbers fail with
// ErrMultipleHeads.
func scanScripts(dir string) ([]Revision, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	byVersion := make(map[uint64]*Revision)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := scriptPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		version, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid revision number in %s: %w", entry.Name(), err)
		}
		name, direction := m[2], m[3]

		if existing, ok := byVersion[version]; ok {
			if existing.Name != name {
				return nil, fmt.Errorf("%w: revision %s used by %q and %q",
					ErrMultipleHeads, formatRevision(version), existing.Name, name)
			}
			if direction == "down" {
				existing.HasDown = true
			}
			continue
		}

		byVersion[version] = &Revision{
			Version: version,
			Name:    name,
			HasDown: direction == "down",
		}
	}

	revisions := make([]Revision, 0, len(byVersion))
	for _, rev := range byVersion {
		revisions = append(revisions, *rev)
	}
	sort.Slice(revisions, func(i, j int) bool {
		return revisions[i].Version < revisions[j].Version
	})

	return revisions, nil
}
