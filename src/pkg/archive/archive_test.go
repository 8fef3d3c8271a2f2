package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gh-nvat/layoutchk/src/pkg/github"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpenZip(t *testing.T) {
	data := buildZip(t, map[string]string{
		"layout-test-results/fast/a-actual.txt": "text",
		"layout-test-results/fast/a-actual.png": "png",
	})
	h, err := OpenZip(data, "mem", "42")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{
		"layout-test-results/fast/a-actual.png",
		"layout-test-results/fast/a-actual.txt",
	}, h.ListEntries())
	got, err := h.ReadEntry("layout-test-results/fast/a-actual.txt")
	require.NoError(t, err)
	assert.Equal(t, "text", string(got))
	assert.Equal(t, "42", h.Revision())
	assert.Equal(t, "mem", h.Source())

	_, err = h.ReadEntry("layout-test-results/missing-actual.txt")
	assert.Error(t, err)

	_, err = OpenZip([]byte("not a zip"), "mem", "")
	assert.Error(t, err)
}

func TestOpenZipUnwrapsNested(t *testing.T) {
	inner := buildZip(t, map[string]string{"layout-test-results/a-actual.txt": "inner"})
	outer := buildZip(t, map[string]string{ArchiveFileName: string(inner)})

	h, err := OpenZip(outer, "artifact", "sha")
	require.NoError(t, err)
	assert.Equal(t, []string{"layout-test-results/a-actual.txt"}, h.ListEntries())
}

func TestLatestRevision(t *testing.T) {
	listing := `<html><a href="../">..</a><a href="98/">98/</a><a href="1000/">1000/</a><a href="999/">999/</a><a href="LATEST/">x</a></html>`
	rev, ok := latestRevision(listing)
	assert.True(t, ok)
	assert.Equal(t, "1000", rev)

	_, ok = latestRevision(`<a href="0/">0/</a>`)
	assert.False(t, ok)
	_, ok = latestRevision("")
	assert.False(t, ok)
}

func TestBuildbotProvider(t *testing.T) {
	archive := buildZip(t, map[string]string{"layout-test-results/a-actual.txt": "new"})

	mux := http.NewServeMux()
	mux.HandleFunc("/Webkit_Win__deps_/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Webkit_Win__deps_/":
			fmt.Fprint(w, `<a href="7/">7/</a><a href="12/">12/</a>`)
		case "/Webkit_Win__deps_/12/layout-test-results.zip":
			_, _ = w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/Webkit_Linux__deps_/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Webkit_Linux__deps_/" {
			fmt.Fprint(w, `<a href="5/">5/</a>`)
			return
		}
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	b, err := NewBuildbotProvider(server.URL+"/", "", platform.Variant{}, nil)
	require.NoError(t, err)
	b.Client = server.Client()

	h, err := b.FetchLatest(context.Background(), platform.Win)
	require.NoError(t, err)
	assert.Equal(t, "12", h.Revision())
	assert.Equal(t, server.URL+"/Webkit_Win__deps_/12/layout-test-results.zip", h.Source())
	got, err := h.ReadEntry("layout-test-results/a-actual.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	_, err = b.FetchLatest(context.Background(), platform.Linux)
	assert.ErrorIs(t, err, ErrNoArchive)

	_, err = b.FetchLatest(context.Background(), platform.Mac)
	assert.ErrorIs(t, err, ErrNoRevision)
}

func TestBuildbotProviderVariants(t *testing.T) {
	var requested string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		fmt.Fprint(w, "no revisions here")
	}))
	defer server.Close()

	b, err := NewBuildbotProvider(server.URL, "", platform.Variant{Canary: true, GPU: true}, nil)
	require.NoError(t, err)
	b.Client = server.Client()

	_, err = b.FetchLatest(context.Background(), platform.Win)
	assert.ErrorIs(t, err, ErrNoRevision)
	assert.Equal(t, "/Webkit_Win_-_GPU/", requested)

	_, err = b.FetchLatest(context.Background(), platform.WinXP)
	assert.Error(t, err, "gpu win-xp has no archive dir")

	_, err = NewBuildbotProvider(server.URL, "[ARCHIVE_URL]/[BUILDER]", platform.Variant{}, nil)
	assert.Error(t, err)
}

func TestLocalProvider(t *testing.T) {
	root := t.TempDir()
	archive := buildZip(t, map[string]string{"layout-test-results/a-actual.txt": "local"})
	for _, rev := range []string{"3", "20", "100"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "Webkit_Mac10_5__deps_", rev), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "Webkit_Mac10_5__deps_", "100", ArchiveFileName), archive, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Webkit_Linux__deps_", "9"), 0755))

	l := &LocalProvider{Root: root}
	h, err := l.FetchLatest(context.Background(), platform.Mac)
	require.NoError(t, err)
	assert.Equal(t, "100", h.Revision())

	_, err = l.FetchLatest(context.Background(), platform.Linux)
	assert.ErrorIs(t, err, ErrNoArchive)

	_, err = l.FetchLatest(context.Background(), platform.Win)
	assert.ErrorIs(t, err, ErrNoRevision)
}

func TestForcedProvider(t *testing.T) {
	archive := buildZip(t, map[string]string{"layout-test-results/a-actual.txt": "forced"})
	path := filepath.Join(t.TempDir(), "results.zip")
	require.NoError(t, os.WriteFile(path, archive, 0644))

	h, err := (&ForcedProvider{Location: path}).FetchLatest(context.Background(), platform.Linux)
	require.NoError(t, err)
	assert.Len(t, h.ListEntries(), 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()
	h, err = (&ForcedProvider{Location: server.URL + "/x.zip", Client: server.Client()}).FetchLatest(context.Background(), platform.Win)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/x.zip", h.Source())

	_, err = (&ForcedProvider{Location: filepath.Join(t.TempDir(), "nope.zip")}).FetchLatest(context.Background(), platform.Win)
	assert.ErrorIs(t, err, ErrNoArchive)
}

type fakeArtifactClient struct {
	run       *github.WorkflowRun
	artifacts map[string]*github.Artifact
	data      map[int64][]byte
}

func (f *fakeArtifactClient) LatestSuccessfulRun(ctx context.Context, repo, workflowFile, branch string) (*github.WorkflowRun, error) {
	return f.run, nil
}

func (f *fakeArtifactClient) FindArtifact(ctx context.Context, repo string, runID int64, name string) (*github.Artifact, error) {
	return f.artifacts[name], nil
}

func (f *fakeArtifactClient) DownloadArtifact(ctx context.Context, repo string, artifactID int64) ([]byte, error) {
	return f.data[artifactID], nil
}

func TestGitHubProvider(t *testing.T) {
	inner := buildZip(t, map[string]string{"layout-test-results/a-actual.txt": "gh"})
	client := &fakeArtifactClient{
		run:       &github.WorkflowRun{ID: 5, RunNumber: 3, HeadSHA: "deadbeef"},
		artifacts: map[string]*github.Artifact{"Webkit_Win__deps_": {ID: 8, Name: "Webkit_Win__deps_"}},
		data:      map[int64][]byte{8: buildZip(t, map[string]string{ArchiveFileName: string(inner)})},
	}
	g := &GitHubProvider{Client: client, Repo: "o/r", Workflow: "layout.yml", Branch: "main"}

	h, err := g.FetchLatest(context.Background(), platform.Win)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", h.Revision())
	assert.Equal(t, []string{"layout-test-results/a-actual.txt"}, h.ListEntries())

	_, err = g.FetchLatest(context.Background(), platform.Linux)
	assert.ErrorIs(t, err, ErrNoArchive)

	client.run = nil
	_, err = g.FetchLatest(context.Background(), platform.Win)
	assert.ErrorIs(t, err, ErrNoRevision)
}
