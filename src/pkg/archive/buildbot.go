package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gh-nvat/layoutchk/src/pkg/pathbuilder"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
)

var revisionPattern = regexp.MustCompile(`<a href="(\d+)/">`)

// BuildbotProvider reads archives from a buildbot layout test archive server:
// <base>/<archive dir>/<revision>/layout-test-results.zip, newest revision wins.
type BuildbotProvider struct {
	BaseURL     string
	Variant     platform.Variant
	ArchiveDirs map[string]string // overrides keyed by variant key or platform
	URLTemplate *pathbuilder.PathBuilder
	Client      *http.Client
}

var _ Provider = (*BuildbotProvider)(nil)

func NewBuildbotProvider(baseURL, urlTemplate string, variant platform.Variant, archiveDirs map[string]string) (*BuildbotProvider, error) {
	if urlTemplate == "" {
		urlTemplate = pathbuilder.DefaultArchiveURLTemplate
	}
	pb, err := pathbuilder.NewPathBuilder(urlTemplate,
		pathbuilder.VarArchiveURL, pathbuilder.VarArchiveDir, pathbuilder.VarRevision,
		pathbuilder.VarPlatform, pathbuilder.VarCanonical)
	if err != nil {
		return nil, fmt.Errorf("invalid archive URL template: %w", err)
	}
	return &BuildbotProvider{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Variant:     variant,
		ArchiveDirs: archiveDirs,
		URLTemplate: pb,
		Client:      http.DefaultClient,
	}, nil
}

func (b *BuildbotProvider) FetchLatest(ctx context.Context, p platform.Platform) (Handle, error) {
	dir, err := p.ArchiveDirName(b.Variant, b.ArchiveDirs)
	if err != nil {
		return nil, err
	}
	rev, err := b.LatestRevision(ctx, dir)
	if err != nil {
		return nil, err
	}

	archiveURL, err := b.URLTemplate.InterpolatePath(map[string]string{
		pathbuilder.VarArchiveURL: b.BaseURL,
		pathbuilder.VarArchiveDir: dir,
		pathbuilder.VarRevision:   rev,
		pathbuilder.VarPlatform:   string(p),
		pathbuilder.VarCanonical:  p.CanonicalName(),
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("platform", p).WithField("url", archiveURL).Info("Archive found")

	data, status, err := get(ctx, b.Client, archiveURL)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNoArchive, archiveURL)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", archiveURL, status)
	}
	return OpenZip(data, archiveURL, rev)
}

// LatestRevision scans the directory listing of dir for revision links and
// returns the numerically largest.
func (b *BuildbotProvider) LatestRevision(ctx context.Context, dir string) (string, error) {
	listURL := b.BaseURL + "/" + dir + "/"
	logger.WithField("url", listURL).Debug("Url to retrieve revision")

	data, status, err := get(ctx, b.Client, listURL)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: listing %s returned status %d", ErrNoRevision, listURL, status)
	}

	rev, ok := latestRevision(string(data))
	if !ok {
		return "", fmt.Errorf("%w at %s", ErrNoRevision, listURL)
	}
	logger.WithField("revision", rev).Info("Latest revision")
	return rev, nil
}

func latestRevision(listing string) (string, bool) {
	best := -1
	for _, m := range revisionPattern.FindAllStringSubmatch(listing, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best <= 0 {
		return "", false
	}
	return strconv.Itoa(best), true
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, resp.StatusCode, nil
}
