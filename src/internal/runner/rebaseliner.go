package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gh-nvat/layoutchk/src/pkg/archive"
	"github.com/gh-nvat/layoutchk/src/pkg/baseline"
	"github.com/gh-nvat/layoutchk/src/pkg/expectations"
	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"github.com/gh-nvat/layoutchk/src/pkg/policy"
	"github.com/gh-nvat/layoutchk/src/pkg/scm"
	"github.com/gh-nvat/layoutchk/src/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
)

// Rebaseliner runs the pass for a single platform:
// Idle -> CandidatesCompiled -> ArchiveFetched -> Extracting -> ExpectationsUpdated -> Done,
// with any step able to end in Failed. A failed pass keeps whatever it already
// committed.
type Rebaseliner struct {
	Expectations expectations.Store
	Archives     archive.Provider
	Layout       *baseline.Layout
	Store        baseline.Store
	Resolver     *baseline.Resolver
	SCM          scm.SCM

	// Gate is optional; nil lets every candidate through.
	Gate policy.PolicyEvaluatorInterface
	// Include restricts candidates to tests matching any pattern; empty means all.
	Include []string
	// StagingDir holds extracted baselines before they are resolved.
	StagingDir string
}

func logDashed(text string, p platform.Platform) {
	logger.Infof("---- %s: %s ----", text, p)
}

// Rebaseline runs one platform pass and reports what happened. It never
// returns an error; failures end the pass in StateFailed.
func (r *Rebaseliner) Rebaseline(ctx context.Context, p platform.Platform) models.PlatformReport {
	ctx, span := trace.StartSpan(ctx, fmt.Sprintf("Rebaseline.%s", p))
	defer span.End()
	lg := logger.WithField("platform", p)

	rep := models.PlatformReport{
		Platform:    p,
		State:       models.StateIdle,
		Candidates:  []string{},
		Tests:       []models.TestOutcome{},
		Rebaselined: []string{},
	}

	logDashed("Compiling rebaselining tests", p)
	candidates, denied, err := r.compileCandidates(ctx, p)
	if err != nil {
		return r.fail(&rep, fmt.Errorf("failed to compile candidates: %w", err))
	}
	rep.Candidates = candidates
	rep.Denied = denied
	rep.State = models.StateCandidatesCompiled
	if len(candidates) == 0 {
		lg.Warn("No tests found that need rebaselining.")
		rep.State = models.StateDone
		return rep
	}
	lg.WithField("count", len(candidates)).Info("Total number of tests needing rebaselining")
	for i, test := range candidates {
		lg.Infof("  %d: %s", i+1, test)
	}

	logDashed("Downloading archive", p)
	handle, err := r.Archives.FetchLatest(ctx, p)
	if err != nil {
		return r.fail(&rep, err)
	}
	rep.Revision = handle.Revision()
	rep.State = models.StateArchiveFetched
	span.SetAttributes(attribute.String("revision", rep.Revision), attribute.Int("candidates", len(candidates)))

	logDashed("Extracting and adding new baselines", p)
	rep.State = models.StateExtracting
	entries := make(map[string]bool)
	for _, name := range handle.ListEntries() {
		entries[name] = true
	}
	for i, test := range candidates {
		lg.Infof("Test %d: %s", i+1, test)
		outcome := r.extractTest(ctx, handle, entries, test, p)
		rep.Tests = append(rep.Tests, outcome)
		if outcome.FullyRebaselined() {
			lg.WithField("test", test).Info("  Rebaseline succeeded.")
			rep.Rebaselined = append(rep.Rebaselined, test)
		} else {
			lg.WithField("test", test).Warn("  Rebaseline incomplete.")
		}
	}
	if err := handle.Close(); err != nil {
		lg.WithError(err).Warn("Failed to close archive")
	}

	logDashed("Updating rebaselined tests in file", p)
	if len(rep.Rebaselined) > 0 {
		if err := r.Expectations.RemovePlatform(rep.Rebaselined, p); err != nil {
			return r.fail(&rep, fmt.Errorf("failed to update expectations: %w", err))
		}
	} else {
		lg.Warn("No test was rebaselined so nothing to remove.")
	}
	rep.State = models.StateExpectationsUpdated

	rep.State = models.StateDone
	if rep.Succeeded() {
		lg.Info("All tests needing rebaselining were successfully rebaselined.")
	} else {
		lg.WithField("total", len(rep.Candidates)).WithField("rebaselined", len(rep.Rebaselined)).
			Warn("NOT ALL TESTS THAT NEED REBASELINING HAVE BEEN REBASELINED.")
	}
	return rep
}

func (r *Rebaseliner) fail(rep *models.PlatformReport, err error) models.PlatformReport {
	logger.WithField("platform", rep.Platform).WithField("state", rep.State).WithError(err).Error("Rebaseline failed")
	rep.State = models.StateFailed
	rep.Error = err.Error()
	return *rep
}

// compileCandidates reads the tests marked for rebaseline on p, then applies
// the include patterns and the policy gate.
func (r *Rebaseliner) compileCandidates(ctx context.Context, p platform.Platform) ([]string, map[string]string, error) {
	tests, err := r.Expectations.TestsNeedingRebaseline(p)
	if err != nil {
		return nil, nil, err
	}

	if len(r.Include) > 0 {
		filtered := make([]string, 0, len(tests))
		for _, test := range tests {
			ok, err := matchAny(r.Include, test)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				filtered = append(filtered, test)
			}
		}
		tests = filtered
	}

	if r.Gate == nil || len(tests) == 0 {
		return tests, nil, nil
	}
	allowed, denied, err := r.Gate.Filter(ctx, tests, p)
	if err != nil {
		return nil, nil, err
	}
	if len(denied) == 0 {
		denied = nil
	}
	return allowed, denied, nil
}

func matchAny(patterns []string, test string) (bool, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return false, fmt.Errorf("invalid include pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
		ok, err := doublestar.Match(pattern, test)
		if err != nil {
			return false, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *Rebaseliner) extractTest(ctx context.Context, h archive.Handle, entries map[string]bool, test string, p platform.Platform) models.TestOutcome {
	out := models.TestOutcome{Test: test}
	for _, suffix := range models.BaselineSuffixes {
		out.Suffixes = append(out.Suffixes, r.extractSuffix(ctx, h, entries, test, suffix, p))
	}
	return out
}

func (r *Rebaseliner) extractSuffix(ctx context.Context, h archive.Handle, entries map[string]bool, test string, suffix models.Suffix, p platform.Platform) models.SuffixOutcome {
	lg := logger.WithField("platform", p).WithField("test", test).WithField("suffix", suffix)
	so := models.SuffixOutcome{Suffix: suffix}

	name := baseline.ActualArchiveName(test, suffix)
	lg.WithField("entry", name).Debug("Archive test file name")
	if !entries[name] {
		lg.Info("  file not in archive.")
		so.Outcome = models.OutcomeSkippedNotFound
		return so
	}
	lg.Info("  file found in archive.")

	failed := func(err error) models.SuffixOutcome {
		lg.WithError(err).Error("  Failed to commit baseline")
		so.Outcome = models.OutcomeCommitFailed
		so.Error = err.Error()
		return so
	}

	data, err := h.ReadEntry(name)
	if err != nil {
		return failed(err)
	}
	staged := filepath.Join(r.StagingDir, string(p), filepath.FromSlash(baseline.ExpectedFilename(test, suffix)))
	if err := r.Store.Write(staged, data); err != nil {
		return failed(fmt.Errorf("failed to stage baseline: %w", err))
	}

	target := r.Layout.TargetPath(test, suffix, p)
	so.BaselinePath = target
	lg.WithField("target", target).Debug("Expected file full path")

	candidate := models.BaselineCandidate{Test: test, Suffix: suffix, Platform: p, Content: data}
	chain := baseline.StripOwn(r.Layout.FallbackChain(test, suffix, p), target)
	res, err := r.Resolver.ResolveDuplicate(candidate, target, chain)
	if err != nil {
		lg.WithError(err).Warn("  Could not verify fallback baseline, keeping new baseline")
	}

	if res.Decision == baseline.Redundant {
		if err := r.Store.Delete(staged); err != nil {
			lg.WithError(err).Warn("  Failed to discard staged baseline")
		}
		so.Outcome = models.OutcomeSkippedAsDuplicate
		so.FallbackPath = res.FallbackPath
		if r.Store.Exists(target) {
			if err := r.SCM.Delete(ctx, target); err != nil {
				return failed(err)
			}
			lg.WithField("target", target).Info("  Deleted duplicate baseline")
		}
		return so
	}

	if err := r.Store.Move(staged, target); err != nil {
		return failed(fmt.Errorf("failed to place baseline: %w", err))
	}
	if err := r.SCM.Add(ctx, target); err != nil {
		return failed(err)
	}
	so.Outcome = models.OutcomeCommitted
	return so
}
