package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	return &Client{client: gh, httpClient: server.Client()}
}

func TestParseOwnerRepo(t *testing.T) {
	owner, repo, err := ParseOwnerRepo("chromium/webkit")
	require.NoError(t, err)
	assert.Equal(t, "chromium", owner)
	assert.Equal(t, "webkit", repo)

	for _, bad := range []string{"", "noslash", "a/b/c", "/b", "a/"} {
		_, _, err := ParseOwnerRepo(bad)
		assert.Error(t, err, bad)
	}
}

func TestLatestSuccessfulRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/actions/workflows/layout.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("branch"))
		assert.Equal(t, "success", r.URL.Query().Get("status"))
		fmt.Fprint(w, `{"total_count":1,"workflow_runs":[{"id":77,"run_number":12,"head_sha":"abc"}]}`)
	})
	c := newTestClient(t, mux)

	run, err := c.LatestSuccessfulRun(context.Background(), "o/r", "layout.yml", "main")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, int64(77), run.ID)
	assert.Equal(t, 12, run.RunNumber)
	assert.Equal(t, "abc", run.HeadSHA)
}

func TestLatestSuccessfulRunNone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/actions/workflows/layout.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count":0,"workflow_runs":[]}`)
	})
	c := newTestClient(t, mux)

	run, err := c.LatestSuccessfulRun(context.Background(), "o/r", "layout.yml", "main")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestFindArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/actions/runs/77/artifacts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count":3,"artifacts":[
			{"id":1,"name":"Webkit_Win__deps_","expired":true},
			{"id":2,"name":"Webkit_Win__deps_","size_in_bytes":42},
			{"id":3,"name":"Webkit_Linux__deps_"}]}`)
	})
	c := newTestClient(t, mux)

	a, err := c.FindArtifact(context.Background(), "o/r", 77, "Webkit_Win__deps_")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, int64(2), a.ID)
	assert.Equal(t, int64(42), a.Size)

	missing, err := c.FindArtifact(context.Background(), "o/r", 77, "Webkit_Mac10_5__deps_")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDownloadArtifact(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/repos/o/r/actions/artifacts/2/zip", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, serverURL+"/blob/2.zip", http.StatusFound)
	})
	mux.HandleFunc("/blob/2.zip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "zipbytes")
	})
	c := newTestClient(t, mux)
	serverURL = c.client.BaseURL.Scheme + "://" + c.client.BaseURL.Host

	data, err := c.DownloadArtifact(context.Background(), "o/r", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("zipbytes"), data)
}
