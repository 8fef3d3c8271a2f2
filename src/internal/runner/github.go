package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/gh-nvat/layoutchk/src/pkg/archive"
	"github.com/gh-nvat/layoutchk/src/pkg/github"
	"github.com/gh-nvat/layoutchk/src/pkg/policy"
	"github.com/gh-nvat/layoutchk/src/pkg/report"
	"github.com/gh-nvat/layoutchk/src/pkg/scm"
)

// RunnerGitHub takes archives from GitHub Actions artifacts and, inside a
// workflow, appends the run summary to the job summary page.
type RunnerGitHub struct {
	RunnerBase

	options  *Options
	ghclient github.ArtifactClient
}

func NewRunnerGitHub(
	ctx context.Context,
	options *Options,
	ghclient github.ArtifactClient,
	vcs scm.SCM,
	evaluator policy.PolicyEvaluatorInterface,
) (*RunnerGitHub, error) {
	if ghclient == nil {
		return nil, fmt.Errorf("GitHub client is not initialized")
	}
	var provider archive.Provider = &archive.GitHubProvider{
		Client:      ghclient,
		Repo:        options.GhRepo,
		Workflow:    options.GhWorkflow,
		Branch:      options.GhBranch,
		Variant:     options.Variant(),
		ArchiveDirs: options.ArchiveDirOverrides(),
	}
	if options.ForceArchive != "" {
		provider = &archive.ForcedProvider{Location: options.ForceArchive}
	}
	baseRunner, err := NewRunnerBase(ctx, options, provider, vcs, evaluator)
	if err != nil {
		return nil, err
	}
	return &RunnerGitHub{
		RunnerBase: *baseRunner,
		options:    options,
		ghclient:   ghclient,
	}, nil
}

func (r *RunnerGitHub) Initialize() error {
	lg := logger.WithField("func", "RunnerGitHub.Initialize()")
	lg.Info("Initializing runner: starting...")

	if r.options.GhRepo == "" || r.options.GhWorkflow == "" {
		return fmt.Errorf("--gh-repo and --gh-workflow are required in github mode")
	}
	if _, _, err := github.ParseOwnerRepo(r.options.GhRepo); err != nil {
		return err
	}
	if runID := os.Getenv("GITHUB_RUN_ID"); runID != "" {
		lg.WithField("GITHUB_RUN_ID", runID).Info("Running inside GitHub Actions")
	}
	lg.Info("Initializing runner: done.")
	return r.RunnerBase.Initialize()
}

func (r *RunnerGitHub) Process() error {
	err := r.RunnerBase.Process()
	if r.Run != nil {
		if summaryErr := r.outputStepSummary(); summaryErr != nil {
			logger.WithError(summaryErr).Warn("Failed to write job summary")
		}
	}
	return err
}

// outputStepSummary appends a markdown summary to $GITHUB_STEP_SUMMARY when set.
func (r *RunnerGitHub) outputStepSummary() error {
	path := os.Getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		logger.Debug("GITHUB_STEP_SUMMARY env was not set, skipping job summary")
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	report.WriteSummaryMarkdown(f, r.Run)
	return nil
}
