// Package expectations reads and rewrites the test expectations file.
package expectations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var logger = log.WithField("package", "expectations")

var ErrLocked = errors.New("expectations file is locked by another run")

const backupTimeFormat = "20060102150405"

// Store is what the rebaseliner needs from the expectations file.
type Store interface {
	// TestsNeedingRebaseline lists tests marked for rebaseline on p, in file order.
	TestsNeedingRebaseline(p platform.Platform) ([]string, error)
	// RemovePlatform drops p from each test's entry, deleting entries left
	// without platforms, and persists the result.
	RemovePlatform(tests []string, p platform.Platform) error
}

// FileStore is a YAML expectations file held under an exclusive lock for the
// lifetime of the store.
type FileStore struct {
	Path   string
	Backup bool // move the original aside before the first write

	file     models.ExpectationsFile
	lock     *flock.Flock
	backedUp bool
	now      func() time.Time
}

var _ Store = (*FileStore)(nil)

// Open locks and loads the expectations file at path.
func Open(path string, backup bool) (*FileStore, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		_ = lock.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	s := &FileStore{Path: path, Backup: backup, lock: lock, now: time.Now}
	if err := s.load(); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.WithField("path", path).WithField("entries", len(s.file.Expectations)).Debug("Loaded expectations")
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("failed to read expectations: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.file); err != nil {
		return fmt.Errorf("failed to parse expectations: %w", err)
	}
	for i, e := range s.file.Expectations {
		if e.Test == "" {
			return fmt.Errorf("expectation #%d: test is required", i)
		}
	}
	return nil
}

// Close releases the file lock.
func (s *FileStore) Close() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.Close()
	s.lock = nil
	return err
}

// Entries returns a copy of the current expectations.
func (s *FileStore) Entries() []models.Expectation {
	out := make([]models.Expectation, len(s.file.Expectations))
	copy(out, s.file.Expectations)
	return out
}

func (s *FileStore) TestsNeedingRebaseline(p platform.Platform) ([]string, error) {
	seen := make(map[string]bool)
	var tests []string
	for _, e := range s.file.Expectations {
		if !e.Rebaseline || !hasPlatform(e.Platforms, p) || seen[e.Test] {
			continue
		}
		seen[e.Test] = true
		tests = append(tests, e.Test)
	}
	return tests, nil
}

func (s *FileStore) RemovePlatform(tests []string, p platform.Platform) error {
	if len(tests) == 0 {
		return nil
	}
	remove := make(map[string]bool, len(tests))
	for _, t := range tests {
		remove[t] = true
	}

	kept := make([]models.Expectation, 0, len(s.file.Expectations))
	for _, e := range s.file.Expectations {
		if !remove[e.Test] || !e.Rebaseline {
			kept = append(kept, e)
			continue
		}
		e.Platforms = withoutPlatform(e.Platforms, p)
		if len(e.Platforms) == 0 {
			logger.WithField("test", e.Test).Debug("Removed expectation entry")
			continue
		}
		kept = append(kept, e)
	}

	// the in-memory view only changes once the file is written
	next := s.file
	next.Expectations = kept
	if err := s.write(next); err != nil {
		return err
	}
	s.file = next
	return nil
}

// Save writes the expectations file, first copying the original to
// <path>.orig.<timestamp> when Backup is set. The backup is taken once.
func (s *FileStore) Save() error {
	return s.write(s.file)
}

func (s *FileStore) write(file models.ExpectationsFile) error {
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to marshal expectations: %w", err)
	}

	if s.Backup && !s.backedUp {
		backupPath := s.Path + ".orig." + s.now().Format(backupTimeFormat)
		original, err := os.ReadFile(s.Path)
		if err != nil {
			return fmt.Errorf("failed to back up expectations: %w", err)
		}
		if err := os.WriteFile(backupPath, original, 0644); err != nil {
			return fmt.Errorf("failed to back up expectations: %w", err)
		}
		logger.WithField("backup", backupPath).Info("Backed up expectations file")
		s.backedUp = true
	}

	// write aside and rename so a failed write leaves the old file in place
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to write expectations: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write expectations: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write expectations: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write expectations: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to write expectations: %w", err)
	}
	logger.WithField("path", s.Path).Info("Updated expectations file")
	return nil
}

func hasPlatform(names []string, p platform.Platform) bool {
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), string(p)) {
			return true
		}
	}
	return false
}

func withoutPlatform(names []string, p platform.Platform) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.EqualFold(strings.TrimSpace(n), string(p)) {
			out = append(out, n)
		}
	}
	return out
}
