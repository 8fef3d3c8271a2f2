package models

import (
	"fmt"
	"strings"
)

// ResultType summarizes how a test run turned out. Values are ordered by
// severity for reporting: PASS < TEXT < IMAGE < IMAGE_PLUS_TEXT < MISSING < TIMEOUT < CRASH.
type ResultType int

const (
	ResultPass ResultType = iota
	ResultText
	ResultImage
	ResultImagePlusText
	ResultMissing
	ResultTimeout
	ResultCrash
)

var resultTypeNames = map[ResultType]string{
	ResultPass:          "PASS",
	ResultText:          "TEXT",
	ResultImage:         "IMAGE",
	ResultImagePlusText: "IMAGE+TEXT",
	ResultMissing:       "MISSING",
	ResultTimeout:       "TIMEOUT",
	ResultCrash:         "CRASH",
}

func (r ResultType) String() string {
	if name, ok := resultTypeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ResultType(%d)", int(r))
}

// IsWorseThan reports whether r is more severe than other.
func (r ResultType) IsWorseThan(other ResultType) bool {
	return r > other
}

// ParseResultType accepts the canonical names plus IMAGE_PLUS_TEXT.
func ParseResultType(s string) (ResultType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "IMAGE_PLUS_TEXT" {
		return ResultImagePlusText, nil
	}
	for r, n := range resultTypeNames {
		if n == name {
			return r, nil
		}
	}
	return ResultPass, fmt.Errorf("unknown result type %q", s)
}

func (r ResultType) MarshalText() ([]byte, error) {
	if _, ok := resultTypeNames[r]; !ok {
		return nil, fmt.Errorf("invalid result type %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *ResultType) UnmarshalText(text []byte) error {
	parsed, err := ParseResultType(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
