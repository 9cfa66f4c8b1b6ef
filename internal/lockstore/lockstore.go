// Package lockstore tracks which skills are installed, and at which
// version, in a small JSON ledger under the install root. The ledger
// is advisory: losing it must never block an install or uninstall that
// otherwise succeeded, so load self-heals and save never raises.
package lockstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"skilldock/internal/fsutil"
	"skilldock/internal/logging"
)

// SchemaVersion is written into every document for forward migration.
const SchemaVersion = 1

const (
	lockDirName  = ".lock"
	lockFileName = "lock.json"
)

// Entry records one installed skill.
type Entry struct {
	Version     string `json:"version"`
	InstalledAt int64  `json:"installedAt"` // unix millis
}

// Document is the on-disk ledger shape.
type Document struct {
	Version int              `json:"version"`
	Skills  map[string]Entry `json:"skills"`
}

func emptyDocument() Document {
	return Document{Version: SchemaVersion, Skills: map[string]Entry{}}
}

// Store reads and writes the ledger for one install root.
type Store struct {
	path string
	now  func() time.Time
}

func New(installRoot string) *Store {
	return &Store{
		path: filepath.Join(installRoot, lockDirName, lockFileName),
		now:  time.Now,
	}
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// Load reads the ledger. A missing file is a fresh install root and a
// corrupt file self-heals to an empty document; neither is an error to
// the caller.
func (s *Store) Load() Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warnw("lock file unreadable, starting empty", "path", s.path, "error", err)
		}
		return emptyDocument()
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warnw("lock file corrupt, starting empty", "path", s.path, "error", err)
		return emptyDocument()
	}
	if doc.Version == 0 {
		doc.Version = SchemaVersion
	}
	if doc.Skills == nil {
		doc.Skills = map[string]Entry{}
	}
	return doc
}

// Save writes the ledger. Failures are logged, not returned: a lost
// lockfile must not fail an operation that already changed the disk.
func (s *Store) Save(doc Document) {
	if doc.Version == 0 {
		doc.Version = SchemaVersion
	}
	if doc.Skills == nil {
		doc.Skills = map[string]Entry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logging.Errorw("encode lock file", "path", s.path, "error", err)
		return
	}
	data = append(data, '\n')
	if err := fsutil.EnsureDir(filepath.Dir(s.path)); err != nil {
		logging.Errorw("create lock directory", "path", s.path, "error", err)
		return
	}
	if err := fsutil.AtomicWrite(s.path, data, 0o644); err != nil {
		logging.Errorw("write lock file", "path", s.path, "error", err)
	}
}

// Get returns the tracked entry for slug, if any.
func (s *Store) Get(slug string) (Entry, bool) {
	entry, ok := s.Load().Skills[slug]
	return entry, ok
}

// Put records slug at version with the current install time.
func (s *Store) Put(slug, version string) {
	doc := s.Load()
	doc.Skills[slug] = Entry{Version: version, InstalledAt: s.now().UnixMilli()}
	s.Save(doc)
}

// Remove drops slug from the ledger. Removing an untracked slug is a
// no-op.
func (s *Store) Remove(slug string) {
	doc := s.Load()
	if _, ok := doc.Skills[slug]; !ok {
		return
	}
	delete(doc.Skills, slug)
	s.Save(doc)
}

// ListAll returns every tracked entry keyed by slug.
func (s *Store) ListAll() map[string]Entry {
	return s.Load().Skills
}

// Slugs returns tracked slugs in sorted order for stable output.
func (s *Store) Slugs() []string {
	skills := s.Load().Skills
	slugs := make([]string, 0, len(skills))
	for slug := range skills {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
