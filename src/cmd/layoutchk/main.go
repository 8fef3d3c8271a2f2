package main

import (
	"fmt"
	"os"

	"github.com/gh-nvat/layoutchk/src/internal/runner"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command, parse args from CLI
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layoutchk",
		Short: "Layout test failure classifier and baseline rebaseliner",
		Long: `layoutchk classifies layout test failures and rebaselines expected results.
The rebaseline command pulls the newest results archive of every platform, commits
the new baselines into the checkout, skips baselines a fallback platform already
provides, and drops the platform from the rebaseline expectations.`,
		Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRebaselineCmd(), newClassifyCmd())
	return cmd
}

func newRebaselineCmd() *cobra.Command {
	opts := &runner.Options{}

	cmd := &cobra.Command{
		Use:   "rebaseline",
		Short: "Rebaseline tests marked REBASELINE in the expectations file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	// Run mode
	cmd.Flags().StringVar(&opts.RunMode, "run-mode", runner.RunModeBuildbot, "Run mode: buildbot, github or local")

	// Common flags
	cmd.Flags().StringSliceVarP(&opts.Platforms, "platforms", "p", []string{},
		"Platforms to rebaseline (comma-separated, e.g., mac,win,linux). Defaults to every platform of the variant")
	cmd.Flags().StringVar(&opts.LayoutTestsDir, "layout-tests-dir", "./LayoutTests", "Path to the layout tests directory")
	cmd.Flags().StringVar(&opts.ExpectationsPath, "expectations", "./test_expectations.yaml", "Path to the test expectations file")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Path to rebaseline-config.yaml")
	cmd.Flags().StringVar(&opts.PoliciesPath, "policies-path", "",
		"Path to a rego file or directory gating which tests may be rebaselined")
	cmd.Flags().StringSliceVar(&opts.Include, "include", []string{},
		"Only rebaseline tests matching these glob patterns (e.g., fast/**)")
	cmd.Flags().BoolVarP(&opts.Backup, "backup", "b", false, "Keep a timestamped copy of the original expectations file")
	cmd.Flags().Float64Var(&opts.Tolerance, "tolerance", 0, "Percentage of differing pixels under which two images are duplicates")
	cmd.Flags().BoolVar(&opts.Canary, "canary", false, "Use the canary bots' archives")
	cmd.Flags().BoolVar(&opts.GPU, "gpu", false, "Use the GPU bots' archives (implies the GPU platform list)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Debug mode")

	// Output flags
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "./output",
		"Output directory in case the tool need to export files")
	cmd.Flags().StringVar(&opts.HTMLDir, "html-dir", "", "Directory for the html baseline report (defaults to <output-dir>/html)")
	cmd.Flags().BoolVar(&opts.NoHTML, "no-html", false, "Do not generate the html baseline report")
	cmd.Flags().BoolVar(&opts.EnableExportReport, "enable-export-report", false, "Enable export report (json file to output dir)")
	cmd.Flags().BoolVar(&opts.EnableExportPerformanceReport, "enable-export-performance-report", false, "Enable export performance report (json file to output dir)")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write run metrics in Prometheus text format to this file")

	// Archive source flags
	cmd.Flags().StringVar(&opts.ArchiveURL, "archive-url", runner.DefaultArchiveURL, "Base URL of the buildbot archive server [buildbot mode]")
	cmd.Flags().StringVar(&opts.ForceArchive, "force-archive", "", "URL or path of the results zip to use for every platform")

	// GitHub mode flags
	cmd.Flags().StringVar(&opts.GhRepo, "gh-repo", "", "GitHub repository (e.g., org/repo) [github mode]")
	cmd.Flags().StringVar(&opts.GhWorkflow, "gh-workflow", "", "Workflow file producing the results artifacts [github mode]")
	cmd.Flags().StringVar(&opts.GhBranch, "gh-branch", "main", "Branch whose latest successful run is used [github mode]")

	// Local mode flags
	cmd.Flags().StringVar(&opts.LcArchivesPath, "lc-archives-path", "", "Path to a local mirror of the archive server [local mode]")

	return cmd
}
