// Package report writes the rebaseline comparison page, summary tables and
// machine-readable run reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gh-nvat/layoutchk/src/pkg/baseline"
	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"github.com/gh-nvat/layoutchk/src/pkg/scm"
	"github.com/gh-nvat/layoutchk/src/pkg/template"
	"github.com/pmezard/go-difflib/difflib"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "report")

// ReportData feeds the rebaseline.html template.
type ReportData struct {
	RunID        string
	Timestamp    time.Time
	EmptyMessage string
	Tests        []TestSection
}

type TestSection struct {
	Test string
	Rows []BaselineRow
}

// BaselineRow links to the copies of one committed baseline. Links are
// relative to the HTML directory; empty means not available.
type BaselineRow struct {
	Platform string
	Kind     string
	Pixel    bool
	Old      string
	New      string
	Diff     string
}

// HTMLGenerator builds the old/new/diff comparison page for every committed
// baseline of a run.
type HTMLGenerator struct {
	Dir      string
	Store    baseline.Store
	SCM      scm.SCM
	Renderer *template.Renderer
}

func NewHTMLGenerator(dir string, store baseline.Store, vcs scm.SCM) *HTMLGenerator {
	return &HTMLGenerator{Dir: dir, Store: store, SCM: vcs, Renderer: template.NewRenderer()}
}

// Generate writes <Dir>/rebaseline.html and the files it links to, and
// returns the page path.
func (g *HTMLGenerator) Generate(ctx context.Context, run *models.RunReport) (string, error) {
	logger.Info("GenerateHTML: starting...")

	subdir := filepath.Join(g.Dir, template.ReportSubdir)
	if err := os.RemoveAll(subdir); err != nil {
		return "", fmt.Errorf("failed to clean %s: %w", subdir, err)
	}
	if err := os.MkdirAll(subdir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", subdir, err)
	}

	sections := make(map[string]*TestSection)
	for _, pr := range run.Platforms {
		for _, to := range pr.Tests {
			for _, so := range to.Suffixes {
				if so.Outcome != models.OutcomeCommitted || so.Suffix == models.SuffixImageHash {
					continue
				}
				row, err := g.copyBaseline(ctx, to.Test, pr.Platform, so)
				if err != nil {
					logger.WithField("test", to.Test).WithField("platform", pr.Platform).WithError(err).Warn("Skipping baseline in HTML report")
					continue
				}
				sec, ok := sections[to.Test]
				if !ok {
					sec = &TestSection{Test: to.Test}
					sections[to.Test] = sec
				}
				sec.Rows = append(sec.Rows, row)
			}
		}
	}

	data := ReportData{RunID: run.RunID, Timestamp: run.Timestamp, EmptyMessage: template.NoTestsMessage}
	for _, sec := range sections {
		sortRows(sec.Rows)
		data.Tests = append(data.Tests, *sec)
	}
	sort.Slice(data.Tests, func(i, j int) bool { return data.Tests[i].Test < data.Tests[j].Test })

	page, err := g.Renderer.Render(template.FileNameRebaselineTemplate, data)
	if err != nil {
		return "", err
	}
	pagePath := filepath.Join(g.Dir, template.ReportFileName)
	if err := os.WriteFile(pagePath, []byte(page), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", pagePath, err)
	}

	logger.WithField("path", pagePath).WithField("tests", len(data.Tests)).Info("GenerateHTML: done.")
	return pagePath, nil
}

func (g *HTMLGenerator) copyBaseline(ctx context.Context, test string, p platform.Platform, so models.SuffixOutcome) (BaselineRow, error) {
	row := BaselineRow{Platform: string(p), Kind: so.Suffix.Kind(), Pixel: so.Suffix.IsPixel()}

	newBytes, err := g.Store.Read(so.BaselinePath)
	if err != nil {
		return row, err
	}
	if row.New, err = g.writeResult(test, p, "new", so.Suffix, newBytes); err != nil {
		return row, err
	}

	oldBytes, err := g.SCM.ShowHead(ctx, so.BaselinePath)
	switch {
	case errors.Is(err, scm.ErrNotTracked):
		logger.WithField("path", so.BaselinePath).Debug("No old baseline")
		return row, nil
	case err != nil:
		logger.WithField("path", so.BaselinePath).WithError(err).Warn("Failed to read old baseline")
		return row, nil
	}
	if row.Old, err = g.writeResult(test, p, "old", so.Suffix, oldBytes); err != nil {
		return row, err
	}

	if so.Suffix == models.SuffixText {
		diff, err := UnifiedDiff(oldBytes, newBytes)
		if err != nil {
			return row, err
		}
		if diff != "" {
			if row.Diff, err = g.writeResult(test, p, "diff", so.Suffix, []byte(diff)); err != nil {
				return row, err
			}
		}
	}
	return row, nil
}

// writeResult stores data as rebaseline_html/<test base>-<platform>-<kind><suffix>
// and returns its link relative to Dir.
func (g *HTMLGenerator) writeResult(test string, p platform.Platform, kind string, suffix models.Suffix, data []byte) (string, error) {
	link := ResultFilename(test, p, kind, suffix)
	full := filepath.Join(g.Dir, filepath.FromSlash(link))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", full, err)
	}
	return link, nil
}

// ResultFilename is the slash-separated link of one copied baseline.
func ResultFilename(test string, p platform.Platform, kind string, suffix models.Suffix) string {
	test = filepath.ToSlash(test)
	base := strings.TrimSuffix(test, path.Ext(test))
	return path.Join(template.ReportSubdir, fmt.Sprintf("%s-%s-%s%s", base, p, kind, suffix))
}

// UnifiedDiff returns the unified diff of two text baselines, empty when equal.
func UnifiedDiff(oldBytes, newBytes []byte) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(oldBytes)),
		B:        difflib.SplitLines(string(newBytes)),
		FromFile: "old",
		ToFile:   "new",
		Context:  3,
	})
}

func sortRows(rows []BaselineRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		pi := platform.Platform(rows[i].Platform).Priority()
		pj := platform.Platform(rows[j].Platform).Priority()
		if pi != pj {
			return pi < pj
		}
		return rows[i].Kind > rows[j].Kind
	})
}
