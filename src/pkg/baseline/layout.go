package baseline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/gh-nvat/layoutchk/src/pkg/pathbuilder"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
)

// Location is one place a baseline may live: a baseline directory plus the
// test-relative file name inside it.
type Location struct {
	Dir  string
	File string
}

func (l Location) Path() string {
	return filepath.Join(l.Dir, l.File)
}

// SamePath compares two baseline paths the way the baseline store resolves
// them: cleaned and case-insensitive.
func SamePath(a, b string) bool {
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}

// ExpectedFilename turns "fast/dom/a.html" into "fast/dom/a-expected.txt".
func ExpectedFilename(test string, suffix models.Suffix) string {
	return trimExt(test) + "-expected" + string(suffix)
}

// ActualArchiveName is the archive entry holding the actual output for test.
func ActualArchiveName(test string, suffix models.Suffix) string {
	return "layout-test-results/" + trimExt(test) + "-actual" + string(suffix)
}

func trimExt(test string) string {
	test = filepath.ToSlash(test)
	ext := filepath.Ext(test)
	return strings.TrimSuffix(test, ext)
}

// Layout knows where each platform's baselines live and in which order
// lookups fall back across platforms.
type Layout struct {
	LayoutTestsDir string

	dirs     map[platform.Platform]string
	fallback map[platform.Platform][]platform.Platform
}

// NewLayout builds the layout for all platforms, applying config overrides.
func NewLayout(layoutTestsDir string, cfg models.RebaselineConfig) (*Layout, error) {
	tmpl := cfg.BaselineDirTemplate
	if tmpl == "" {
		tmpl = pathbuilder.DefaultBaselineDirTemplate
	}
	pb, err := pathbuilder.NewPathBuilder(tmpl, pathbuilder.VarPlatform, pathbuilder.VarCanonical)
	if err != nil {
		return nil, fmt.Errorf("invalid baseline dir template: %w", err)
	}

	l := &Layout{
		LayoutTestsDir: layoutTestsDir,
		dirs:           make(map[platform.Platform]string),
		fallback:       make(map[platform.Platform][]platform.Platform),
	}
	for _, p := range platform.PriorityOrder {
		pc := cfg.Platforms[string(p)]

		dir := pc.BaselineDir
		if dir == "" {
			dir, err = pb.InterpolatePath(map[string]string{
				pathbuilder.VarPlatform:  string(p),
				pathbuilder.VarCanonical: p.CanonicalName(),
			})
			if err != nil {
				return nil, err
			}
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(layoutTestsDir, dir)
		}
		l.dirs[p] = dir

		if len(pc.Fallback) == 0 {
			l.fallback[p] = platform.DefaultFallback(p)
			continue
		}
		for _, name := range pc.Fallback {
			fp, err := platform.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("platform %s fallback: %w", p, err)
			}
			if fp == p {
				return nil, fmt.Errorf("platform %s cannot fall back to itself", p)
			}
			l.fallback[p] = append(l.fallback[p], fp)
		}
	}
	return l, nil
}

// BaselineDir is the directory holding p's own baselines.
func (l *Layout) BaselineDir(p platform.Platform) string {
	return l.dirs[p]
}

// TargetPath is where p's own baseline for test/suffix lives.
func (l *Layout) TargetPath(test string, suffix models.Suffix, p platform.Platform) string {
	return filepath.Clean(filepath.Join(l.BaselineDir(p), ExpectedFilename(test, suffix)))
}

// FallbackChain lists every location a lookup for test/suffix on p consults,
// most specific first: p's own directory, its fallback platforms, then the
// generic baseline beside the test.
func (l *Layout) FallbackChain(test string, suffix models.Suffix, p platform.Platform) []Location {
	file := ExpectedFilename(test, suffix)
	chain := []Location{{Dir: l.BaselineDir(p), File: file}}
	for _, fp := range l.fallback[p] {
		chain = append(chain, Location{Dir: l.BaselineDir(fp), File: file})
	}
	return append(chain, Location{Dir: l.LayoutTestsDir, File: file})
}

// StripOwn drops every entry of chain that resolves to target.
func StripOwn(chain []Location, target string) []Location {
	out := make([]Location, 0, len(chain))
	for _, loc := range chain {
		if SamePath(loc.Path(), target) {
			continue
		}
		out = append(out, loc)
	}
	return out
}

// Lookup returns the first existing location in chain.
func Lookup(store Store, chain []Location) (Location, bool) {
	for _, loc := range chain {
		if loc.Dir == "" || loc.File == "" {
			continue
		}
		if store.Exists(loc.Path()) {
			return loc, true
		}
	}
	return Location{}, false
}
