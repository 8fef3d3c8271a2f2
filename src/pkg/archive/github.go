package archive

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gh-nvat/layoutchk/src/pkg/github"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
)

// GitHubProvider takes archives from the artifacts of the latest successful
// run of a workflow. Artifacts are named after the platform's archive dir.
type GitHubProvider struct {
	Client      github.ArtifactClient
	Repo        string
	Workflow    string
	Branch      string
	Variant     platform.Variant
	ArchiveDirs map[string]string
}

var _ Provider = (*GitHubProvider)(nil)

func (g *GitHubProvider) FetchLatest(ctx context.Context, p platform.Platform) (Handle, error) {
	name, err := p.ArchiveDirName(g.Variant, g.ArchiveDirs)
	if err != nil {
		return nil, err
	}

	run, err := g.Client.LatestSuccessfulRun(ctx, g.Repo, g.Workflow, g.Branch)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: no successful run of %s on %s", ErrNoRevision, g.Workflow, g.Branch)
	}

	artifact, err := g.Client.FindArtifact(ctx, g.Repo, run.ID, name)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: artifact %s in run %d", ErrNoArchive, name, run.ID)
	}
	logger.WithField("platform", p).WithField("run", run.ID).WithField("artifact", artifact.ID).Info("Archive found")

	data, err := g.Client.DownloadArtifact(ctx, g.Repo, artifact.ID)
	if err != nil {
		return nil, err
	}
	source := fmt.Sprintf("github.com/%s/actions/runs/%d/artifacts/%d", g.Repo, run.ID, artifact.ID)
	revision := run.HeadSHA
	if revision == "" {
		revision = strconv.Itoa(run.RunNumber)
	}
	return OpenZip(data, source, revision)
}
