package models

import (
	"time"

	"github.com/gh-nvat/layoutchk/src/pkg/platform"
)

// Suffix identifies one kind of baseline file.
type Suffix string

const (
	SuffixText      Suffix = ".txt"
	SuffixImage     Suffix = ".png"
	SuffixImageHash Suffix = ".checksum"
)

// BaselineSuffixes is the fixed set, in extraction order.
var BaselineSuffixes = []Suffix{SuffixText, SuffixImage, SuffixImageHash}

// IsPixel reports whether baselines of this suffix are compared as images.
func (s Suffix) IsPixel() bool {
	return s == SuffixImage
}

// Kind is the human name used in reports.
func (s Suffix) Kind() string {
	switch s {
	case SuffixText:
		return "Render Tree"
	case SuffixImage:
		return "Pixel"
	default:
		return "Other"
	}
}

// CommitOutcome is what happened to one (test, suffix) during extraction.
type CommitOutcome string

const (
	OutcomeCommitted          CommitOutcome = "committed"
	OutcomeSkippedAsDuplicate CommitOutcome = "skipped_duplicate"
	OutcomeSkippedNotFound    CommitOutcome = "skipped_not_found"
	OutcomeCommitFailed       CommitOutcome = "commit_failed"
)

// PlatformState is a state of the per-platform rebaseline state machine.
type PlatformState string

const (
	StateIdle                PlatformState = "idle"
	StateCandidatesCompiled  PlatformState = "candidates_compiled"
	StateArchiveFetched      PlatformState = "archive_fetched"
	StateExtracting          PlatformState = "extracting"
	StateExpectationsUpdated PlatformState = "expectations_updated"
	StateDone                PlatformState = "done"
	StateFailed              PlatformState = "failed"
)

// BaselineCandidate is a baseline pulled out of an archive, alive only within one platform pass.
type BaselineCandidate struct {
	Test     string
	Suffix   Suffix
	Platform platform.Platform
	Content  []byte
}

type SuffixOutcome struct {
	Suffix       Suffix        `json:"suffix"`
	Outcome      CommitOutcome `json:"outcome"`
	BaselinePath string        `json:"baselinePath,omitempty"`
	FallbackPath string        `json:"fallbackPath,omitempty"` // set when skipped as duplicate
	Error        string        `json:"error,omitempty"`
}

type TestOutcome struct {
	Test     string          `json:"test"`
	Suffixes []SuffixOutcome `json:"suffixes"`
}

// FullyRebaselined is true when at least one suffix was committed and none failed to commit.
func (t TestOutcome) FullyRebaselined() bool {
	committed := false
	for _, s := range t.Suffixes {
		switch s.Outcome {
		case OutcomeCommitFailed:
			return false
		case OutcomeCommitted:
			committed = true
		}
	}
	return committed
}

// Outcome returns the recorded outcome for suffix, if any.
func (t TestOutcome) Outcome(suffix Suffix) (CommitOutcome, bool) {
	for _, s := range t.Suffixes {
		if s.Suffix == suffix {
			return s.Outcome, true
		}
	}
	return "", false
}

// PlatformReport is the result of one platform pass.
type PlatformReport struct {
	Platform    platform.Platform `json:"platform"`
	State       PlatformState     `json:"state"`
	Revision    string            `json:"revision,omitempty"`
	Candidates  []string          `json:"candidates"`
	Denied      map[string]string `json:"denied,omitempty"` // test -> policy message
	Tests       []TestOutcome     `json:"tests"`
	Rebaselined []string          `json:"rebaselined"`
	Error       string            `json:"error,omitempty"`
}

// Succeeded is true when every candidate test was fully rebaselined.
func (p PlatformReport) Succeeded() bool {
	return p.State == StateDone && len(p.Rebaselined) == len(p.Candidates)
}

// Incomplete lists candidates that were not fully rebaselined.
func (p PlatformReport) Incomplete() []string {
	done := make(map[string]bool, len(p.Rebaselined))
	for _, t := range p.Rebaselined {
		done[t] = true
	}
	var out []string
	for _, t := range p.Candidates {
		if !done[t] {
			out = append(out, t)
		}
	}
	return out
}

// RunReport aggregates all platform passes of one run.
type RunReport struct {
	RunID     string           `json:"runId"`
	Timestamp time.Time        `json:"timestamp"`
	Platforms []PlatformReport `json:"platforms"`
	HTMLPath  string           `json:"htmlPath,omitempty"`
}

// Succeeded is true when every platform pass succeeded.
func (r RunReport) Succeeded() bool {
	for _, p := range r.Platforms {
		if !p.Succeeded() {
			return false
		}
	}
	return true
}

// AllCandidates returns the union of candidate tests across platforms, in first-seen order.
func (r RunReport) AllCandidates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.Platforms {
		for _, t := range p.Candidates {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
