package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/gh-nvat/layoutchk/src/pkg/archive"
	"github.com/gh-nvat/layoutchk/src/pkg/policy"
	"github.com/gh-nvat/layoutchk/src/pkg/scm"
)

// RunnerLocal reads archives from a local mirror of the archive server.
type RunnerLocal struct {
	RunnerBase

	options *Options
}

func NewRunnerLocal(
	ctx context.Context,
	options *Options,
	vcs scm.SCM,
	evaluator policy.PolicyEvaluatorInterface,
) (*RunnerLocal, error) {
	var provider archive.Provider = &archive.LocalProvider{
		Root:        options.LcArchivesPath,
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
	return &RunnerLocal{
		RunnerBase: *baseRunner,
		options:    options,
	}, nil
}

func (r *RunnerLocal) Initialize() error {
	if r.options.ForceArchive == "" {
		info, err := os.Stat(r.options.LcArchivesPath)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("--lc-archives-path must be an existing directory in local mode")
		}
	}
	return r.RunnerBase.Initialize()
}
