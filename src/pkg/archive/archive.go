// Package archive locates and opens layout-test-results archives.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "archive")

var (
	// ErrNoRevision means no build revision could be discovered for a platform.
	ErrNoRevision = errors.New("no revision found")
	// ErrNoArchive means a revision was found but it has no results archive.
	ErrNoArchive = errors.New("no archive found")
)

const (
	ArchiveFileName = "layout-test-results.zip"
	ResultsDirName  = "layout-test-results"
)

// Handle exposes the entries of one fetched archive. It is owned by a single
// platform pass and must be closed at the end of it.
type Handle interface {
	ListEntries() []string
	ReadEntry(name string) ([]byte, error)
	// Source is the URL or path the archive came from.
	Source() string
	Revision() string
	Close() error
}

// Provider finds the newest results archive for a platform.
type Provider interface {
	FetchLatest(ctx context.Context, p platform.Platform) (Handle, error)
}

// ZipHandle is a Handle over an in-memory zip file.
type ZipHandle struct {
	source   string
	revision string
	reader   *zip.Reader
	entries  map[string]*zip.File
}

var _ Handle = (*ZipHandle)(nil)

// OpenZip wraps data as a Handle. An archive whose only useful content is a
// nested layout-test-results.zip (the shape GitHub artifacts take) is unwrapped.
func OpenZip(data []byte, source, revision string) (*ZipHandle, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", source, err)
	}
	h := &ZipHandle{source: source, revision: revision, reader: r, entries: make(map[string]*zip.File)}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		h.entries[f.Name] = f
	}

	if _, nested := h.entries[ArchiveFileName]; nested && !h.hasResults() {
		inner, err := h.ReadEntry(ArchiveFileName)
		if err != nil {
			return nil, err
		}
		logger.WithField("source", source).Debug("Unwrapping nested results archive")
		return OpenZip(inner, source, revision)
	}
	return h, nil
}

func (h *ZipHandle) hasResults() bool {
	prefix := ResultsDirName + "/"
	for name := range h.entries {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (h *ZipHandle) ListEntries() []string {
	names := make([]string, 0, len(h.entries))
	for name := range h.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *ZipHandle) ReadEntry(name string) ([]byte, error) {
	f, ok := h.entries[name]
	if !ok {
		return nil, fmt.Errorf("entry %s not in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (h *ZipHandle) Source() string {
	return h.source
}

func (h *ZipHandle) Revision() string {
	return h.revision
}

func (h *ZipHandle) Close() error {
	h.entries = nil
	h.reader = nil
	return nil
}
