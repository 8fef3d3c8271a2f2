// Package failures describes the ways a layout test's output can diverge
// from its expectation and collapses a set of them into one result type.
package failures

import (
	"fmt"
	"sort"
	"strings"
)

// Failure is one kind of observed divergence. A test run yields a Set of them.
type Failure int

const (
	_ Failure = iota
	Timeout
	Crash
	MissingResult
	MissingImageHash
	MissingImage
	TextMismatch
	ImageHashMismatch
	ImageHashIncorrect
	ReftestMismatch
	ReftestMismatchDidNotOccur
)

// All lists every valid failure.
var All = []Failure{
	Timeout, Crash, MissingResult, MissingImageHash, MissingImage,
	TextMismatch, ImageHashMismatch, ImageHashIncorrect,
	ReftestMismatch, ReftestMismatchDidNotOccur,
}

type failureInfo struct {
	name         string
	message      string
	suffixes     []string
	killsHarness bool
}

var infos = map[Failure]failureInfo{
	Timeout: {
		name:         "Timeout",
		message:      "Test timed out",
		killsHarness: true,
	},
	Crash: {
		name:         "Crash",
		message:      "DumpRenderTree crashed",
		suffixes:     []string{"-stack.txt"},
		killsHarness: true,
	},
	MissingResult: {
		name:     "MissingResult",
		message:  "No expected results found",
		suffixes: []string{"-actual.txt"},
	},
	MissingImageHash: {
		name:    "MissingImageHash",
		message: "No expected image hash found",
	},
	MissingImage: {
		name:     "MissingImage",
		message:  "No expected image found",
		suffixes: []string{"-actual.png"},
	},
	TextMismatch: {
		name:     "TextMismatch",
		message:  "Text diff mismatch",
		suffixes: []string{"-actual.txt", "-expected.txt", "-diff.txt", "-wdiff.html", "-pretty-diff.html"},
	},
	ImageHashMismatch: {
		name:     "ImageHashMismatch",
		message:  "Image mismatch",
		suffixes: []string{"-actual.png", "-expected.png", "-diff.png"},
	},
	ImageHashIncorrect: {
		name:    "ImageHashIncorrect",
		message: "Images match, expected image hash incorrect.",
	},
	ReftestMismatch: {
		name:     "ReftestMismatch",
		message:  "Mismatch with reference",
		suffixes: []string{"-expected.html", "-expected.png", "-actual.png", "-diff.png"},
	},
	ReftestMismatchDidNotOccur: {
		name:     "ReftestMismatchDidNotOccur",
		message:  "Mismatch with the reference did not occur",
		suffixes: []string{"-expected-mismatch.html", "-actual.png"},
	},
}

// Valid reports whether f is one of the declared failures.
func (f Failure) Valid() bool {
	_, ok := infos[f]
	return ok
}

func (f Failure) String() string {
	if info, ok := infos[f]; ok {
		return info.name
	}
	return fmt.Sprintf("Failure(%d)", int(f))
}

// Message is the human-readable description shown in result pages.
func (f Failure) Message() string {
	return infos[f].message
}

// OutputSuffixes are the output-file suffixes relevant to f, possibly empty.
func (f Failure) OutputSuffixes() []string {
	return append([]string(nil), infos[f].suffixes...)
}

// KillsHarness is true when the test harness must be restarted before the next test.
func (f Failure) KillsHarness() bool {
	return infos[f].killsHarness
}

// OutputFilenames maps f's suffixes onto a test path, replacing its extension:
// "fast/dom/foo.html" with "-actual.txt" becomes "fast/dom/foo-actual.txt".
func (f Failure) OutputFilenames(test string) []string {
	suffixes := infos[f].suffixes
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, RelativeOutputFilename(test, s))
	}
	return out
}

// RelativeOutputFilename replaces the extension of test with modifier.
func RelativeOutputFilename(test, modifier string) string {
	if idx := strings.LastIndex(test, "."); idx >= 0 && idx > strings.LastIndex(test, "/") {
		return test[:idx] + modifier
	}
	return test + modifier
}

// Parse looks a failure up by name, case-insensitively.
func Parse(name string) (Failure, error) {
	trimmed := strings.TrimSpace(name)
	for f, info := range infos {
		if strings.EqualFold(info.name, trimmed) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown failure %q", name)
}

func (f Failure) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid failure %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Failure) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Set is an unordered collection of failures; adding a failure twice keeps one.
type Set map[Failure]struct{}

func NewSet(fs ...Failure) Set {
	s := make(Set, len(fs))
	for _, f := range fs {
		s.Add(f)
	}
	return s
}

func (s Set) Add(f Failure) {
	s[f] = struct{}{}
}

func (s Set) Has(f Failure) bool {
	_, ok := s[f]
	return ok
}

// Names returns the failure names sorted alphabetically.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for f := range s {
		names = append(names, f.String())
	}
	sort.Strings(names)
	return names
}

// KillsHarness is true when any member requires a harness restart.
func (s Set) KillsHarness() bool {
	for f := range s {
		if f.KillsHarness() {
			return true
		}
	}
	return false
}

// ParseSet builds a Set from failure names.
func ParseSet(names []string) (Set, error) {
	s := make(Set, len(names))
	for _, name := range names {
		f, err := Parse(name)
		if err != nil {
			return nil, err
		}
		s.Add(f)
	}
	return s, nil
}
