// Package baseline locates, compares and deduplicates expected-output files.
package baseline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "baseline")

// Store is the baseline file store. Paths are absolute or relative to the process cwd.
type Store interface {
	Exists(path string) bool
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Delete(path string) error
	// Move places src at dst, creating parent directories.
	Move(src, dst string) error
}

// FSStore is a Store on the local filesystem.
type FSStore struct{}

var _ Store = (*FSStore)(nil)

func NewFSStore() *FSStore {
	return &FSStore{}
}

func (s *FSStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *FSStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (s *FSStore) Write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0644)
}

func (s *FSStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FSStore) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// rename fails across filesystems (staging dir on tmpfs), fall back to copy
	logger.WithField("src", src).WithField("dst", dst).Debug("Rename failed, copying instead")
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
