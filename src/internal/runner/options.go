package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/gh-nvat/layoutchk/src/pkg/pathbuilder"
	"github.com/gh-nvat/layoutchk/src/pkg/platform"
	"gopkg.in/yaml.v3"
)

const (
	RunModeBuildbot = "buildbot"
	RunModeGitHub   = "github"
	RunModeLocal    = "local"

	DefaultArchiveURL = "http://build.chromium.org/f/chromium/layout_test_results"
)

type Options struct {
	// Run mode
	RunMode string // "buildbot", "github" or "local"
	Debug   bool   // Debug mode

	// Common options
	Platforms        []string // empty means the default list for the variant
	LayoutTestsDir   string
	ExpectationsPath string
	ConfigPath       string // optional rebaseline-config.yaml
	PoliciesPath     string // optional rego file or directory
	Include          []string
	Backup           bool
	Tolerance        float64
	Canary           bool
	GPU              bool

	// Output options
	HTMLDir                       string // defaults to <OutputDir>/html
	NoHTML                        bool
	OutputDir                     string
	EnableExportReport            bool
	EnableExportPerformanceReport bool
	MetricsTextfile               string

	// Buildbot mode options
	ArchiveURL   string
	ForceArchive string // URL or path of a results zip, bypasses discovery in every mode

	// GitHub mode options
	GhRepo     string
	GhWorkflow string
	GhBranch   string

	// Local mode options
	LcArchivesPath string

	// Computed internally
	Config *models.RebaselineConfig
}

// Variant returns the archive variant selected by --canary and --gpu.
func (o *Options) Variant() platform.Variant {
	return platform.Variant{Canary: o.Canary, GPU: o.GPU}
}

// SelectedPlatforms validates the platform list and returns it in priority order.
func (o *Options) SelectedPlatforms() ([]platform.Platform, error) {
	if len(o.Platforms) == 0 {
		if o.GPU {
			return platform.DefaultGPUPlatforms, nil
		}
		return platform.DefaultPlatforms, nil
	}
	var names []string
	for _, p := range o.Platforms {
		names = append(names, strings.Split(p, ",")...)
	}
	ordered, err := platform.Ordered(names)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("--platforms must name at least one platform")
	}
	return ordered, nil
}

// LoadConfig reads ConfigPath into Config. Without a path the defaults apply.
func (o *Options) LoadConfig() error {
	cfg := &models.RebaselineConfig{}
	if o.ConfigPath != "" {
		data, err := os.ReadFile(o.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read rebaseline config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse rebaseline config: %w", err)
		}
	}
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid rebaseline config: %w", err)
	}
	o.Config = cfg
	return nil
}

func validateConfig(cfg *models.RebaselineConfig) error {
	// keys are matched exactly later on, so store them canonical
	platforms := make(map[string]models.PlatformConfig, len(cfg.Platforms))
	for name, pc := range cfg.Platforms {
		p, err := platform.Parse(name)
		if err != nil {
			return err
		}
		if _, dup := platforms[string(p)]; dup {
			return fmt.Errorf("platform %s is configured more than once", p)
		}
		platforms[string(p)] = pc
	}
	if len(platforms) > 0 {
		cfg.Platforms = platforms
	}
	if cfg.BaselineDirTemplate != "" {
		if _, err := pathbuilder.NewPathBuilder(cfg.BaselineDirTemplate, pathbuilder.VarPlatform, pathbuilder.VarCanonical); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveDirOverrides maps platform names to configured archive directories.
func (o *Options) ArchiveDirOverrides() map[string]string {
	overrides := make(map[string]string)
	if o.Config == nil {
		return overrides
	}
	for name, pc := range o.Config.Platforms {
		if pc.ArchiveDir != "" {
			overrides[o.Variant().Key(platform.Platform(name))] = pc.ArchiveDir
		}
	}
	return overrides
}
