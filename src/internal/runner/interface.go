package runner

import "github.com/gh-nvat/layoutchk/src/pkg/models"

type RunnerInterface interface {
	// Initialize the runner: load config, lock the expectations file, prepare staging
	Initialize() error

	// Main routine: one rebaseline pass per platform in priority order, then Output
	Process() error

	// Handling the export of the run report
	Output(run *models.RunReport) error

	// Release the expectations lock and staging files
	Close() error
}
