// Package store implements the per-subsystem content-addressed document
// store: identical bytes resolve to one physical file within a subsystem's
// directory, across runs.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// fileNameRe matches stored document names: a sequence number plus a
// lowercase extension.
var fileNameRe = regexp.MustCompile(`^(\d+)\.([a-z]+)$`)

// Store is scoped to one subsystem's output directory. It is not safe for
// concurrent use; the crawl engine guarantees a single owner per
// subsystem.
type Store struct {
	dir    string
	hasher Hasher
	// byHash maps content digest to the stored file name.
	byHash map[string]string
	next   int
}

// Open creates the directory if needed and indexes existing stored files
// so documents persisted by earlier runs keep their names.
func Open(dir string, hasher Hasher) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &Store{dir: dir, hasher: hasher, byHash: make(map[string]string)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan store directory: %w", err)
	}
	for _, entry := range entries {
		match := fileNameRe.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		// Read as raw bytes so the digest is stable across runs.
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read stored document %s: %w", entry.Name(), err)
		}
		sum, err := hasher.Hash(content)
		if err != nil {
			return nil, fmt.Errorf("hash stored document %s: %w", entry.Name(), err)
		}
		s.byHash[sum] = entry.Name()
		if n, err := strconv.Atoi(match[1]); err == nil && n >= s.next {
			s.next = n + 1
		}
	}
	return s, nil
}

// Save stores content under the next sequential name with the given
// extension, or returns the existing name when identical bytes are already
// stored. The bytes are written verbatim. The second return value reports
// whether a write happened.
func (s *Store) Save(content []byte, ext string) (string, bool, error) {
	sum, err := s.hasher.Hash(content)
	if err != nil {
		return "", false, fmt.Errorf("hash document: %w", err)
	}
	return s.SaveDigest(sum, content, ext)
}

// SaveDigest is Save for callers that already computed the content digest
// with the same hasher, so the bytes are hashed only once.
func (s *Store) SaveDigest(digest string, content []byte, ext string) (string, bool, error) {
	if name, ok := s.byHash[digest]; ok {
		return name, false, nil
	}

	name := fmt.Sprintf("%d.%s", s.next, ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), content, 0o640); err != nil {
		return "", false, fmt.Errorf("write document: %w", err)
	}
	s.byHash[digest] = name
	s.next++
	return name, true, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }
