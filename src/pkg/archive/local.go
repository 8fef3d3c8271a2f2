package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gh-nvat/layoutchk/src/pkg/platform"
)

// LocalProvider reads archives from a directory tree mirroring the buildbot
// layout: <root>/<archive dir>/<revision>/layout-test-results.zip.
type LocalProvider struct {
	Root        string
	Variant     platform.Variant
	ArchiveDirs map[string]string
}

var _ Provider = (*LocalProvider)(nil)

func (l *LocalProvider) FetchLatest(ctx context.Context, p platform.Platform) (Handle, error) {
	dir, err := p.ArchiveDirName(l.Variant, l.ArchiveDirs)
	if err != nil {
		return nil, err
	}
	platformDir := filepath.Join(l.Root, dir)

	entries, err := os.ReadDir(platformDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRevision, err)
	}
	best := -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil && n > best {
			best = n
		}
	}
	if best <= 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRevision, platformDir)
	}

	rev := strconv.Itoa(best)
	path := filepath.Join(platformDir, rev, ArchiveFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoArchive, path)
		}
		return nil, err
	}
	logger.WithField("platform", p).WithField("path", path).Info("Archive found")
	return OpenZip(data, path, rev)
}

// ForcedProvider always returns the same archive, given as a URL or a local
// path, regardless of platform.
type ForcedProvider struct {
	Location string
	Client   *http.Client
}

var _ Provider = (*ForcedProvider)(nil)

func (f *ForcedProvider) FetchLatest(ctx context.Context, p platform.Platform) (Handle, error) {
	logger.WithField("platform", p).WithField("location", f.Location).Info("Using forced archive")

	if strings.HasPrefix(f.Location, "http://") || strings.HasPrefix(f.Location, "https://") {
		client := f.Client
		if client == nil {
			client = http.DefaultClient
		}
		data, status, err := get(ctx, client, f.Location)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("%w: %s returned status %d", ErrNoArchive, f.Location, status)
		}
		return OpenZip(data, f.Location, "")
	}

	data, err := os.ReadFile(f.Location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoArchive, f.Location)
		}
		return nil, err
	}
	return OpenZip(data, f.Location, "")
}
