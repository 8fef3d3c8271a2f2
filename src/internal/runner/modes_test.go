package runner

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gh-nvat/layoutchk/src/pkg/archive"
	"github.com/gh-nvat/layoutchk/src/pkg/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubArtifactClient struct{}

func (stubArtifactClient) LatestSuccessfulRun(ctx context.Context, repo, workflowFile, branch string) (*github.WorkflowRun, error) {
	return nil, nil
}

func (stubArtifactClient) FindArtifact(ctx context.Context, repo string, runID int64, name string) (*github.Artifact, error) {
	return nil, nil
}

func (stubArtifactClient) DownloadArtifact(ctx context.Context, repo string, artifactID int64) ([]byte, error) {
	return nil, nil
}

func writeResultsZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func modeOptions(t *testing.T, mode string) *Options {
	t.Helper()
	root := t.TempDir()
	expPath := filepath.Join(root, "expectations.yaml")
	writeExpectations(t, expPath, `expectations:
  - test: a.html
    platforms: [win]
    rebaseline: true
`)
	return &Options{
		RunMode:          mode,
		Platforms:        []string{"win"},
		LayoutTestsDir:   filepath.Join(root, "LayoutTests"),
		ExpectationsPath: expPath,
		NoHTML:           true,
		OutputDir:        filepath.Join(root, "out"),
	}
}

func TestRunnerGitHubRequiresWorkflow(t *testing.T) {
	opts := modeOptions(t, RunModeGitHub)
	opts.GhRepo = "chromium/webkit"
	r, err := NewRunnerGitHub(context.Background(), opts, stubArtifactClient{}, &fakeSCM{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &archive.GitHubProvider{}, r.Archives)
	assert.ErrorContains(t, r.Initialize(), "--gh-workflow")

	_, err = NewRunnerGitHub(context.Background(), opts, nil, &fakeSCM{}, nil)
	assert.Error(t, err)
}

func TestRunnerGitHubWritesStepSummary(t *testing.T) {
	opts := modeOptions(t, RunModeGitHub)
	opts.GhRepo = "chromium/webkit"
	opts.GhWorkflow = "layout-tests.yml"
	opts.ForceArchive = filepath.Join(t.TempDir(), "results.zip")
	writeResultsZip(t, opts.ForceArchive, map[string]string{"layout-test-results/a-actual.txt": "new\n"})

	summary := filepath.Join(t.TempDir(), "summary.md")
	t.Setenv("GITHUB_STEP_SUMMARY", summary)

	r, err := NewRunnerGitHub(context.Background(), opts, stubArtifactClient{}, &fakeSCM{failAdd: map[string]bool{}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &archive.ForcedProvider{}, r.Archives)
	r.Out = io.Discard
	require.NoError(t, r.Initialize())
	defer r.Close()

	require.NoError(t, r.Process())
	data, err := os.ReadFile(summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Rebaseline "+r.RunID)
	assert.Contains(t, string(data), "| win |")
}

func TestRunnerLocal(t *testing.T) {
	opts := modeOptions(t, RunModeLocal)
	opts.LcArchivesPath = filepath.Join(t.TempDir(), "missing")
	r, err := NewRunnerLocal(context.Background(), opts, &fakeSCM{}, nil)
	require.NoError(t, err)
	assert.ErrorContains(t, r.Initialize(), "--lc-archives-path")

	mirror := t.TempDir()
	writeResultsZip(t, filepath.Join(mirror, "Webkit_Win__deps_", "1200", archive.ArchiveFileName),
		map[string]string{"layout-test-results/a-actual.txt": "new\n"})
	opts = modeOptions(t, RunModeLocal)
	opts.LcArchivesPath = mirror
	r, err = NewRunnerLocal(context.Background(), opts, &fakeSCM{failAdd: map[string]bool{}}, nil)
	require.NoError(t, err)
	r.Out = io.Discard
	require.NoError(t, r.Initialize())
	defer r.Close()

	require.NoError(t, r.Process())
	assert.Equal(t, "1200", r.Run.Platforms[0].Revision)
	assert.Equal(t, []string{"a.html"}, r.Run.Platforms[0].Rebaselined)
}
