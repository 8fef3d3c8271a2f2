package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"github.com/open-policy-agent/opa/rego"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.WithFields(log.Fields{
	"package": "policy",
})

const (
	DENY_QUERY = "data.rebaseline.deny"
)

// Input is the document a rebaseline policy is evaluated against.
type Input struct {
	Test     string `json:"test"`
	Platform string `json:"platform"`
}

type PolicyEvaluatorInterface interface {
	// Filter splits tests into those allowed to rebaseline on p and those a
	// policy denies, keyed by test with the joined deny messages.
	Filter(ctx context.Context, tests []string, p platform.Platform) ([]string, map[string]string, error)
}

// PolicyEvaluator evaluates rego modules exposing data.rebaseline.deny.
type PolicyEvaluator struct {
	policiesPath string
	query        rego.PreparedEvalQuery
}

var _ PolicyEvaluatorInterface = (*PolicyEvaluator)(nil)

// NewPolicyEvaluator loads and compiles the .rego files at policiesPath (a file or directory).
func NewPolicyEvaluator(ctx context.Context, policiesPath string) (*PolicyEvaluator, error) {
	logger.Info("LoadAndValidate: starting...")

	info, err := os.Stat(policiesPath)
	if err != nil {
		return nil, fmt.Errorf("policy path not found: %w", err)
	}
	if !info.IsDir() && filepath.Ext(policiesPath) != ".rego" {
		return nil, fmt.Errorf("policy %s: unsupported file extension (must be .rego)", policiesPath)
	}

	query, err := rego.New(
		rego.Query(DENY_QUERY),
		rego.Load([]string{policiesPath}, func(abspath string, info os.FileInfo, depth int) bool {
			// skip non-rego files and rego unit tests
			return !info.IsDir() && (filepath.Ext(abspath) != ".rego" || strings.HasSuffix(abspath, "_test.rego"))
		}),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policies: %w", err)
	}

	logger.WithField("path", policiesPath).Info("LoadAndValidate: done.")
	return &PolicyEvaluator{policiesPath: policiesPath, query: query}, nil
}

// Evaluate returns the deny messages for one test on one platform.
func (e *PolicyEvaluator) Evaluate(ctx context.Context, in Input) ([]string, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy for %s: %w", in.Test, err)
	}
	var msgs []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			values, ok := expr.Value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%s must be a set of messages, got %T", DENY_QUERY, expr.Value)
			}
			for _, v := range values {
				msgs = append(msgs, fmt.Sprint(v))
			}
		}
	}
	sort.Strings(msgs)
	return msgs, nil
}

func (e *PolicyEvaluator) Filter(ctx context.Context, tests []string, p platform.Platform) ([]string, map[string]string, error) {
	allowed := make([]string, 0, len(tests))
	denied := make(map[string]string)
	for _, test := range tests {
		msgs, err := e.Evaluate(ctx, Input{Test: test, Platform: string(p)})
		if err != nil {
			return nil, nil, err
		}
		if len(msgs) > 0 {
			denied[test] = strings.Join(msgs, "; ")
			logger.WithField("test", test).WithField("platform", p).WithField("reason", denied[test]).Warn("Rebaseline denied by policy")
			continue
		}
		allowed = append(allowed, test)
	}
	return allowed, denied, nil
}
