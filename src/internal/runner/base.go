package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gh-nvat/layoutchk/src/pkg/archive"
	"github.com/gh-nvat/layoutchk/src/pkg/baseline"
	"github.com/gh-nvat/layoutchk/src/pkg/expectations"
	"github.com/gh-nvat/layoutchk/src/pkg/metrics"
	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"github.com/gh-nvat/layoutchk/src/pkg/policy"
	"github.com/gh-nvat/layoutchk/src/pkg/report"
	"github.com/gh-nvat/layoutchk/src/pkg/scm"
	"github.com/gh-nvat/layoutchk/src/pkg/trace"
	"github.com/google/uuid"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.WithFields(log.Fields{
	"package": "runner",
})

// ErrRebaselineIncomplete is returned by Process when any platform failed or
// left candidates behind. Partial progress is kept.
var ErrRebaselineIncomplete = errors.New("rebaseline incomplete")

type RunnerBase struct {
	Context context.Context
	Options *Options

	RunMode string
	RunID   string

	Archives  archive.Provider
	SCM       scm.SCM
	Evaluator policy.PolicyEvaluatorInterface // nil when no policies are configured
	Store     baseline.Store
	Out       io.Writer

	Expectations *expectations.FileStore
	Rebaseliner  *Rebaseliner
	Metrics      *metrics.Recorder

	// Run is the report of the last Process call.
	Run *models.RunReport

	platforms  []platform.Platform
	stagingDir string
}

// make RunnerBase implement RunnerInterface
var _ RunnerInterface = (*RunnerBase)(nil)

func NewRunnerBase(
	ctx context.Context,
	options *Options,
	archives archive.Provider,
	vcs scm.SCM,
	evaluator policy.PolicyEvaluatorInterface,
) (*RunnerBase, error) {
	runner := &RunnerBase{
		Context:   ctx,
		Options:   options,
		RunMode:   options.RunMode,
		RunID:     uuid.NewString(),
		Archives:  archives,
		SCM:       vcs,
		Evaluator: evaluator,
		Store:     baseline.NewFSStore(),
		Out:       os.Stdout,
		Metrics:   metrics.NewRecorder(),
	}
	return runner, nil
}

func (r *RunnerBase) Initialize() error {
	logger.Info("Initializing runner: starting...")

	// if any is nil, return error
	if r.Archives == nil || r.SCM == nil {
		return fmt.Errorf("archive provider and scm are required")
	}

	platforms, err := r.Options.SelectedPlatforms()
	if err != nil {
		return err
	}
	r.platforms = platforms

	if r.Options.Config == nil {
		if err := r.Options.LoadConfig(); err != nil {
			return err
		}
	}
	layout, err := baseline.NewLayout(r.Options.LayoutTestsDir, *r.Options.Config)
	if err != nil {
		return err
	}

	logger.Info("Initialize runner: Expectations: Locking and loading expectations file")
	exp, err := expectations.Open(r.Options.ExpectationsPath, r.Options.Backup)
	if err != nil {
		return err
	}
	r.Expectations = exp

	r.stagingDir = filepath.Join(os.TempDir(), "layoutchk-"+r.RunID)
	if err := os.MkdirAll(r.stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}

	r.Rebaseliner = &Rebaseliner{
		Expectations: exp,
		Archives:     r.Archives,
		Layout:       layout,
		Store:        r.Store,
		Resolver:     baseline.NewResolver(r.Store, baseline.PixelComparator{}, r.Options.Tolerance),
		SCM:          r.SCM,
		Gate:         r.Evaluator,
		Include:      r.Options.Include,
		StagingDir:   r.stagingDir,
	}

	logger.WithField("runID", r.RunID).WithField("platforms", platforms).Info("Initialize runner: done.")
	return nil
}

func (r *RunnerBase) Close() error {
	var errs []error
	if r.stagingDir != "" {
		errs = append(errs, os.RemoveAll(r.stagingDir))
	}
	if r.Expectations != nil {
		errs = append(errs, r.Expectations.Close())
	}
	return errors.Join(errs...)
}

// Rebaseline runs every selected platform strictly one after another in
// priority order. Later platforms must see the baselines committed by earlier
// ones, so this loop must never run platforms concurrently.
func (r *RunnerBase) Rebaseline(ctx context.Context) *models.RunReport {
	run := &models.RunReport{RunID: r.RunID, Timestamp: time.Now().UTC()}
	for _, p := range r.platforms {
		logger.Info("")
		logDashed("Rebaseline started", p)
		rep := r.Rebaseliner.Rebaseline(ctx, p)
		logDashed("Rebaseline done", p)
		run.Platforms = append(run.Platforms, rep)
	}
	return run
}

func (r *RunnerBase) Process() error {
	ctx, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")

	run := r.Rebaseline(ctx)
	r.Run = run
	if err := r.Output(run); err != nil {
		return err
	}

	if !run.Succeeded() {
		var incomplete []string
		for _, p := range run.Platforms {
			if !p.Succeeded() {
				incomplete = append(incomplete, string(p.Platform))
			}
		}
		return fmt.Errorf("%w on %s", ErrRebaselineIncomplete, strings.Join(incomplete, ", "))
	}
	logger.Info("Process: done.")
	return nil
}

func (r *RunnerBase) Output(run *models.RunReport) error {
	_, span := trace.StartSpan(r.Context, "Output")
	defer span.End()

	logger.Info("Output: starting...")
	if err := r.outputHTML(run); err != nil {
		return err
	}
	report.WriteSummary(r.Out, run)
	if err := r.outputReportJson(run); err != nil {
		return err
	}
	if err := r.outputMetrics(run); err != nil {
		return err
	}
	logger.Info("Output: done.")
	return nil
}

func (r *RunnerBase) outputHTML(run *models.RunReport) error {
	if r.Options.NoHTML {
		logger.Info("OutputHTML: option was disabled")
		return nil
	}
	dir := r.Options.HTMLDir
	if dir == "" {
		dir = filepath.Join(r.Options.OutputDir, "html")
	}
	page, err := report.NewHTMLGenerator(dir, r.Store, r.SCM).Generate(r.Context, run)
	if err != nil {
		return fmt.Errorf("failed to generate html report: %w", err)
	}
	run.HTMLPath = page
	return nil
}

// Exporting report json file to output directory if enabled
func (r *RunnerBase) outputReportJson(run *models.RunReport) error {
	if !r.Options.EnableExportReport {
		logger.Info("OutputJson: option was disabled")
		return nil
	}
	return report.WriteJSON(filepath.Join(r.Options.OutputDir, "report.json"), run)
}

func (r *RunnerBase) outputMetrics(run *models.RunReport) error {
	if r.Options.MetricsTextfile == "" {
		return nil
	}
	r.Metrics.RecordRun(run)
	return r.Metrics.WriteTextfile(r.Options.MetricsTextfile)
}
