package baseline

import (
	"fmt"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
)

type Decision int

const (
	Keep Decision = iota
	Redundant
)

func (d Decision) String() string {
	if d == Redundant {
		return "redundant"
	}
	return "keep"
}

// Resolution is the outcome of a duplicate check.
type Resolution struct {
	Decision     Decision
	FallbackPath string // first distinct existing fallback, if any
}

// ResolutionIOError means the fallback baseline could not be read. The
// accompanying decision is always Keep.
type ResolutionIOError struct {
	Path string
	Err  error
}

func (e *ResolutionIOError) Error() string {
	return fmt.Sprintf("failed to read fallback baseline %s: %v", e.Path, e.Err)
}

func (e *ResolutionIOError) Unwrap() error {
	return e.Err
}

// Resolver decides whether a new baseline is redundant with the one a lookup
// would fall back to.
type Resolver struct {
	Store      Store
	Comparator Comparator
	Tolerance  float64
}

func NewResolver(store Store, comparator Comparator, tolerance float64) *Resolver {
	return &Resolver{Store: store, Comparator: comparator, Tolerance: tolerance}
}

// ResolveDuplicate walks chain in order and compares the candidate against
// the first existing baseline whose path differs from target. Only that one
// baseline is compared; a difference there means Keep even if a later entry
// would match.
func (r *Resolver) ResolveDuplicate(c models.BaselineCandidate, target string, chain []Location) (Resolution, error) {
	for _, loc := range chain {
		if loc.Dir == "" || loc.File == "" {
			continue
		}
		path := loc.Path()
		if SamePath(path, target) || !r.Store.Exists(path) {
			continue
		}

		fallback, err := r.Store.Read(path)
		if err != nil {
			return Resolution{Decision: Keep, FallbackPath: path}, &ResolutionIOError{Path: path, Err: err}
		}
		if r.differs(c.Suffix, c.Content, fallback) {
			return Resolution{Decision: Keep, FallbackPath: path}, nil
		}
		logger.WithField("test", c.Test).WithField("suffix", c.Suffix).WithField("fallback", path).
			Info("Found same baseline at fallback")
		return Resolution{Decision: Redundant, FallbackPath: path}, nil
	}
	return Resolution{Decision: Keep}, nil
}

func (r *Resolver) differs(suffix models.Suffix, a, b []byte) bool {
	if suffix.IsPixel() {
		return r.Comparator.DiffersAsImage(a, b, r.Tolerance)
	}
	return r.Comparator.DiffersAsText(a, b)
}
