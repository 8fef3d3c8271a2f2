package models

// RebaselineConfig is the optional rebaseline-config.yaml.
// - Platforms: platform name -> overrides
// - BaselineDirTemplate: where platform baselines live, relative to the layout tests dir
// - ArchiveURLTemplate: how the buildbot archive URL is built
type RebaselineConfig struct {
	BaselineDirTemplate string                    `yaml:"baselineDirTemplate,omitempty"` // e.g. "platform/chromium-[PLATFORM]"
	ArchiveURLTemplate  string                    `yaml:"archiveURLTemplate,omitempty"`  // e.g. "[ARCHIVE_URL]/[ARCHIVE_DIR]/[REVISION]/layout-test-results.zip"
	Platforms           map[string]PlatformConfig `yaml:"platforms,omitempty"`
}

// PlatformConfig overrides the built-in settings of one platform.
type PlatformConfig struct {
	ArchiveDir  string   `yaml:"archiveDir,omitempty"`
	BaselineDir string   `yaml:"baselineDir,omitempty"` // overrides BaselineDirTemplate for this platform
	Fallback    []string `yaml:"fallback,omitempty"`    // ordered platform names consulted after this one
}

// Expectation is one entry of the expectations file.
type Expectation struct {
	Test       string       `yaml:"test"`
	Platforms  []string     `yaml:"platforms"`
	Rebaseline bool         `yaml:"rebaseline,omitempty"`
	Results    []ResultType `yaml:"results,omitempty"`
	Bug        string       `yaml:"bug,omitempty"`
}

// ExpectationsFile is the on-disk layout of the expectations store.
type ExpectationsFile struct {
	Expectations []Expectation `yaml:"expectations"`
}
