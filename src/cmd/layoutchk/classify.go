package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gh-nvat/layoutchk/src/pkg/failures"
	"github.com/gh-nvat/layoutchk/src/pkg/report"
	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [failures.json]",
		Short: "Classify observed failures into a single result per test",
		Long: `classify reads a JSON object mapping test names to lists of failure names,
e.g. {"fast/a.html": ["Crash", "Timeout"]}, from the given file or stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return classify(in, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func classify(in io.Reader, out io.Writer, asJSON bool) error {
	var observed map[string][]string
	if err := json.NewDecoder(in).Decode(&observed); err != nil {
		return fmt.Errorf("failed to parse failures: %w", err)
	}

	tests := make([]string, 0, len(observed))
	for test := range observed {
		tests = append(tests, test)
	}
	sort.Strings(tests)

	rows := make([]report.Classification, 0, len(tests))
	failed := 0
	for _, test := range tests {
		row := report.Classification{Test: test, Failures: observed[test]}
		result, err := failures.ClassifyNames(observed[test])
		if err != nil {
			row.Error = err.Error()
			failed++
		} else {
			row.Result = result.String()
		}
		rows = append(rows, row)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
	} else {
		report.WriteClassifications(out, rows)
	}

	if failed > 0 {
		return fmt.Errorf("%d test(s) could not be classified", failed)
	}
	return nil
}
