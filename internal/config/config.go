package config

import (
	"os"
)

// Config is the daemon's resolved configuration: defaults, merged with
// ~/.codeplane/config.yaml (global), merged with <repo>/.codeplane/config.yaml
// (project, takes precedence).
type Config struct {
	Version int
	Project Project
	Server  Server
	Indexer Indexer
	Index   Index
	Logging Logging
	Include []string
	Exclude []string
}

type Project struct {
	Root string
	Name string
}

// Server holds the unix-socket server's tunables.
type Server struct {
	Host            string
	Port            int
	DebounceSec     float64
	PollIntervalSec float64
}

// Indexer controls the background indexer's worker pool.
type Indexer struct {
	Workers int // 0 = auto-detect (NumCPU-1)
}

// Index controls discovery and extraction limits.
type Index struct {
	IndexPath         string // relative to Project.Root, default ".codeplane/index.db"
	MaxFileSize       int64
	MaxTotalSizeMB    int64
	MaxFileCount      int
	FollowSymlinks    bool
	RespectGitignore  bool
	WatchDebounceMs   int
	DriftTolerancePct float64 // lexical/storage doc-count drift tolerance, as a percentage of file count
}

// Logging controls the debug/structured log sink.
type Logging struct {
	Level   string   // "debug", "info", "warn", "error"
	Outputs []string // "stderr", "file", or both
}

const (
	// DefaultDriftTolerancePct mirrors the integrity checker's own tolerance:
	// lexical/storage doc counts may differ by up to 10% (floored at 5
	// absolute documents) before it's reported as drift.
	DefaultDriftTolerancePct = 10.0

	DefaultMaxFileSize    = 10 * 1024 * 1024
	DefaultMaxTotalSizeMB = 500
	DefaultMaxFileCount   = 20000
)

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot resolves configuration for a project rooted at rootDir
// (or the current directory if empty): it merges a global
// ~/.codeplane/config.yaml with a project .codeplane/config.yaml, project
// settings winning but exclusions from both being unioned.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadYAML(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	projectCfg, err := LoadYAML(searchDir)
	if err != nil {
		return nil, err
	}
	if projectCfg != nil {
		projectConfig = projectCfg
	}

	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = searchDir
		cfg = baseConfig
	default:
		cfg = defaultConfig(searchDir)
	}

	cfg.EnrichExclusionsWithBuildArtifacts()
	return cfg, nil
}

func defaultConfig(root string) *Config {
	cwd := root
	if cwd == "" || cwd == "." {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		} else {
			cwd = "."
		}
	}

	return &Config{
		Version: 1,
		Project: Project{Root: cwd},
		Server: Server{
			Host:            "127.0.0.1",
			Port:            0, // 0 = unix socket only, no TCP listener
			DebounceSec:     0.3,
			PollIntervalSec: 2.0,
		},
		Indexer: Indexer{Workers: 0},
		Index: Index{
			IndexPath:         ".codeplane/index.db",
			MaxFileSize:       DefaultMaxFileSize,
			MaxTotalSizeMB:    DefaultMaxTotalSizeMB,
			MaxFileCount:      DefaultMaxFileCount,
			FollowSymlinks:    false,
			RespectGitignore:  true,
			WatchDebounceMs:   300,
			DriftTolerancePct: DefaultDriftTolerancePct,
		},
		Logging: Logging{
			Level:   "info",
			Outputs: []string{"file"},
		},
		Include: []string{},
		Exclude: defaultExclusions(),
	}
}

// defaultExclusions is the hardcoded-prunables list: git metadata, package
// manager directories, build output, binary/media formats, and editor temp
// files that are never worth indexing regardless of project type.
func defaultExclusions() []string {
	return []string{
		"**/.git/**",
		"**/.*/**",

		"**/node_modules/**",
		"**/vendor/**",
		"**/bower_components/**",
		"**/jspm_packages/**",

		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/target/**",
		"**/bin/**",
		"**/obj/**",
		"**/*.min.js",
		"**/*.min.css",
		"**/*.bundle.js",
		"**/*.chunk.js",
		"**/*.min.map",

		"**/*.avif",
		"**/*.webp",
		"**/*.wasm",
		"**/*.woff",
		"**/*.woff2",
		"**/*.ttf",
		"**/*.eot",
		"**/*.otf",

		"**/*.mp4", "**/*.avi", "**/*.mov", "**/*.mkv", "**/*.webm",
		"**/*.mp3", "**/*.wav", "**/*.flac", "**/*.ogg",

		"**/*.doc", "**/*.docx", "**/*.xls", "**/*.xlsx",
		"**/*.ppt", "**/*.pptx", "**/*.pdf",

		"**/*.swp", "**/*.swo", "**/*~",

		"**/__pycache__/**",
		"**/*.pyc",

		"**/Thumbs.db",
		"**/desktop.ini",

		"**/logs/**",
		"**/*.log",
	}
}

// mergeConfigs merges a base (global) config with a project config.
// Project settings take precedence, but exclusions from both are unioned.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		excludeSet := make(map[string]bool, len(base.Exclude)+len(project.Exclude))
		for _, pattern := range base.Exclude {
			excludeSet[pattern] = true
		}
		for _, pattern := range project.Exclude {
			excludeSet[pattern] = true
		}
		merged.Exclude = make([]string, 0, len(excludeSet))
		for pattern := range excludeSet {
			merged.Exclude = append(merged.Exclude, pattern)
		}
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	return &merged
}

// EnrichExclusionsWithBuildArtifacts detects build output directories from
// language-specific project files (package.json, Cargo.toml, ...) and folds
// them into the exclusion list.
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}

	detector := NewBuildArtifactDetector(c.Project.Root)
	detected := detector.DetectOutputDirectories()

	if len(detected) > 0 {
		c.Exclude = append(c.Exclude, detected...)
		c.Exclude = DeduplicatePatterns(c.Exclude)
	}
}
