package failures

import (
	"fmt"
	"strings"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
)

// UnclassifiableFailureSetError means a non-empty set matched no rule of the
// cascade. It signals malformed input and is never mapped to PASS.
type UnclassifiableFailureSetError struct {
	Failures []string
}

func (e *UnclassifiableFailureSetError) Error() string {
	return fmt.Sprintf("unclassifiable set of failures: [%s]", strings.Join(e.Failures, ", "))
}

// Classify returns the result type that best summarizes the set.
//
// The rules are a fixed priority cascade, not a numeric max: crash beats
// timeout beats anything missing; then text and image mismatches combine
// into IMAGE+TEXT, while reftest failures only ever yield IMAGE since
// reftests have no text baseline.
func Classify(set Set) (models.ResultType, error) {
	if len(set) == 0 {
		return models.ResultPass, nil
	}

	switch {
	case set.Has(Crash):
		return models.ResultCrash, nil
	case set.Has(Timeout):
		return models.ResultTimeout, nil
	case set.Has(MissingResult) || set.Has(MissingImage) || set.Has(MissingImageHash):
		return models.ResultMissing, nil
	}

	textFail := set.Has(TextMismatch)
	imageFail := set.Has(ImageHashMismatch) || set.Has(ImageHashIncorrect)
	reftestFail := set.Has(ReftestMismatch) || set.Has(ReftestMismatchDidNotOccur)

	switch {
	case textFail && imageFail:
		return models.ResultImagePlusText, nil
	case textFail:
		return models.ResultText, nil
	case imageFail || reftestFail:
		return models.ResultImage, nil
	}
	return models.ResultPass, &UnclassifiableFailureSetError{Failures: set.Names()}
}

// ClassifyNames parses failure names and classifies them.
func ClassifyNames(names []string) (models.ResultType, error) {
	set, err := ParseSet(names)
	if err != nil {
		return models.ResultPass, err
	}
	return Classify(set)
}
