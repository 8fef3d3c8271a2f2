package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var logger = log.WithField("package", "github")

const maxArtifactRedirects = 10

// WorkflowRun is the subset of a workflow run the archive provider needs.
type WorkflowRun struct {
	ID        int64
	RunNumber int
	HeadSHA   string
}

// Artifact is an uploaded workflow artifact.
type Artifact struct {
	ID   int64
	Name string
	Size int64
}

// ArtifactClient defines the GitHub Actions operations used to locate test
// results archives.
type ArtifactClient interface {
	// LatestSuccessfulRun returns the newest successful run of workflowFile on branch
	LatestSuccessfulRun(ctx context.Context, repo, workflowFile, branch string) (*WorkflowRun, error)
	// FindArtifact returns the non-expired artifact called name in the run, or nil
	FindArtifact(ctx context.Context, repo string, runID int64, name string) (*Artifact, error)
	// DownloadArtifact returns the artifact zip
	DownloadArtifact(ctx context.Context, repo string, artifactID int64) ([]byte, error)
}

// Client handles GitHub API interactions using go-github
type Client struct {
	client     *github.Client
	httpClient *http.Client
}

// Ensure Client implements ArtifactClient
var _ ArtifactClient = (*Client)(nil)

// NewClient creates a new GitHub client
func NewClient() (*Client, error) {
	token := os.Getenv("GH_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("GitHub token not found. Set GH_TOKEN or GITHUB_TOKEN environment variable")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(tc)

	return &Client{
		client:     client,
		httpClient: http.DefaultClient,
	}, nil
}

// ParseOwnerRepo splits "owner/repo".
func ParseOwnerRepo(repo string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(repo), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

func (c *Client) LatestSuccessfulRun(ctx context.Context, repo, workflowFile, branch string) (*WorkflowRun, error) {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}
	opts := &github.ListWorkflowRunsOptions{
		Branch:      branch,
		Status:      "success",
		ListOptions: github.ListOptions{PerPage: 1},
	}
	runs, _, err := c.client.Actions.ListWorkflowRunsByFileName(ctx, owner, repo, workflowFile, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}
	if len(runs.WorkflowRuns) == 0 {
		return nil, nil
	}

	run := runs.WorkflowRuns[0]
	logger.WithField("runID", run.GetID()).WithField("sha", run.GetHeadSHA()).Debug("Found latest successful run")
	return &WorkflowRun{
		ID:        run.GetID(),
		RunNumber: run.GetRunNumber(),
		HeadSHA:   run.GetHeadSHA(),
	}, nil
}

func (c *Client) FindArtifact(ctx context.Context, repo string, runID int64, name string) (*Artifact, error) {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}
	opts := &github.ListOptions{PerPage: 100}

	for {
		list, resp, err := c.client.Actions.ListWorkflowRunArtifacts(ctx, owner, repo, runID, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", err)
		}
		for _, a := range list.Artifacts {
			if a.GetName() == name && !a.GetExpired() {
				return &Artifact{ID: a.GetID(), Name: a.GetName(), Size: a.GetSizeInBytes()}, nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil, nil
}

func (c *Client) DownloadArtifact(ctx context.Context, repo string, artifactID int64) ([]byte, error) {
	owner, repo, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}
	u, _, err := c.client.Actions.DownloadArtifact(ctx, owner, repo, artifactID, maxArtifactRedirects)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact download: %w", err)
	}
	return c.download(ctx, u)
}

// download fetches a pre-signed artifact URL, which must not carry the API token.
func (c *Client) download(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download artifact: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
