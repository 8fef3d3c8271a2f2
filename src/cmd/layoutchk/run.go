package main

import (
	"context"
	"fmt"

	"github.com/gh-nvat/layoutchk/src/internal/runner"
	"github.com/gh-nvat/layoutchk/src/pkg/archive"
	"github.com/gh-nvat/layoutchk/src/pkg/github"
	"github.com/gh-nvat/layoutchk/src/pkg/policy"
	"github.com/gh-nvat/layoutchk/src/pkg/scm"
	"github.com/gh-nvat/layoutchk/src/pkg/trace"
	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.New().WithFields(log.Fields{
	"package": "run",
})

// createRunner creates the runner matching the run mode
func createRunner(ctx context.Context, opts *runner.Options) (runner.RunnerInterface, error) {
	logger.WithField("opts", opts).Debug("Creating runner..")

	vcs := scm.NewGit()
	var evaluator policy.PolicyEvaluatorInterface
	if opts.PoliciesPath != "" {
		e, err := policy.NewPolicyEvaluator(ctx, opts.PoliciesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
		evaluator = e
	}

	switch opts.RunMode {
	case runner.RunModeBuildbot:
		var provider archive.Provider
		if opts.ForceArchive != "" {
			provider = &archive.ForcedProvider{Location: opts.ForceArchive}
		} else {
			bp, err := archive.NewBuildbotProvider(opts.ArchiveURL, opts.Config.ArchiveURLTemplate,
				opts.Variant(), opts.ArchiveDirOverrides())
			if err != nil {
				return nil, err
			}
			provider = bp
		}
		runner, err := runner.NewRunnerBase(ctx, opts, provider, vcs, evaluator)
		if err != nil {
			return nil, fmt.Errorf("failed to create Buildbot runner: %w", err)
		}
		return runner, nil
	case runner.RunModeGitHub:
		ghClient, err := github.NewClient()
		if err != nil {
			return nil, fmt.Errorf("GitHub authentication failed: %w", err)
		}
		runner, err := runner.NewRunnerGitHub(ctx, opts, ghClient, vcs, evaluator)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub runner: %w", err)
		}
		return runner, nil
	case runner.RunModeLocal:
		runner, err := runner.NewRunnerLocal(ctx, opts, vcs, evaluator)
		if err != nil {
			return nil, fmt.Errorf("failed to create Local runner: %w", err)
		}
		return runner, nil
	default:
		return nil, fmt.Errorf("invalid run mode: %s", opts.RunMode)
	}
}

func run(ctx context.Context, opts *runner.Options) error {
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger.WithField("opts", opts).Info("Running..")

	// Initialize tracer
	shutdown, err := trace.InitTracer("layoutchk", opts.EnableExportPerformanceReport, opts.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdown()

	// Validate options
	if err := validateOptions(opts); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	// Initialize runner
	appRunner, err := createRunner(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}
	defer func() {
		if err := appRunner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to clean up runner")
		}
	}()
	if err := appRunner.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize runner: %w", err)
	}

	if err := appRunner.Process(); err != nil {
		return fmt.Errorf("failed to process: %w", err)
	}
	return nil
}

func validateOptions(opts *runner.Options) error {
	// Validate run mode
	switch opts.RunMode {
	case runner.RunModeBuildbot, runner.RunModeGitHub, runner.RunModeLocal:
	default:
		return fmt.Errorf("run-mode must be 'buildbot', 'github' or 'local', got: %s", opts.RunMode)
	}

	if opts.LayoutTestsDir == "" {
		return fmt.Errorf("--layout-tests-dir is required")
	}
	if opts.ExpectationsPath == "" {
		return fmt.Errorf("--expectations is required")
	}
	if opts.Tolerance < 0 || opts.Tolerance > 100 {
		return fmt.Errorf("--tolerance must be between 0 and 100, got: %v", opts.Tolerance)
	}
	if _, err := opts.SelectedPlatforms(); err != nil {
		return err
	}
	// the buildbot URL template comes from the config, so load it up front
	if err := opts.LoadConfig(); err != nil {
		return err
	}

	// Validate mode-specific options
	switch opts.RunMode {
	case runner.RunModeBuildbot:
		if opts.ArchiveURL == "" && opts.ForceArchive == "" {
			return fmt.Errorf("buildbot mode requires --archive-url or --force-archive")
		}
	case runner.RunModeGitHub:
		if opts.GhRepo == "" {
			return fmt.Errorf("github mode requires --gh-repo")
		}
		if _, _, err := github.ParseOwnerRepo(opts.GhRepo); err != nil {
			return err
		}
		if opts.GhWorkflow == "" {
			return fmt.Errorf("github mode requires --gh-workflow")
		}
	case runner.RunModeLocal:
		if opts.LcArchivesPath == "" && opts.ForceArchive == "" {
			return fmt.Errorf("local mode requires --lc-archives-path or --force-archive")
		}
	}
	return nil
}
