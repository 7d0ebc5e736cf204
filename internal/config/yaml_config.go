package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors Config's shape but with yaml tags and pointer fields
// so the zero value of every field is distinguishable from "not set" —
// decodeYAML only overwrites a default when the key was actually present.
type yamlConfig struct {
	Version *int `yaml:"version"`
	Project struct {
		Root *string `yaml:"root"`
		Name *string `yaml:"name"`
	} `yaml:"project"`
	Server struct {
		Host            *string  `yaml:"host"`
		Port            *int     `yaml:"port"`
		DebounceSec     *float64 `yaml:"debounce_sec"`
		PollIntervalSec *float64 `yaml:"poll_interval_sec"`
	} `yaml:"server"`
	Indexer struct {
		Workers *int `yaml:"workers"`
	} `yaml:"indexer"`
	Index struct {
		IndexPath        *string `yaml:"index_path"`
		MaxFileSize      *int64  `yaml:"max_file_size"`
		MaxTotalSizeMB   *int64  `yaml:"max_total_size_mb"`
		MaxFileCount     *int    `yaml:"max_file_count"`
		FollowSymlinks   *bool   `yaml:"follow_symlinks"`
		RespectGitignore *bool   `yaml:"respect_gitignore"`
		WatchDebounceMs  *int    `yaml:"watch_debounce_ms"`
		DriftTolerancePct *float64 `yaml:"drift_tolerance_pct"`
	} `yaml:"index"`
	Logging struct {
		Level   *string  `yaml:"level"`
		Outputs []string `yaml:"outputs"`
	} `yaml:"logging"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// LoadYAML reads <projectRoot>/.codeplane/config.yaml, if present, layering
// its values over the package defaults. Returns (nil, nil) when the file
// does not exist — callers treat that as "use defaults".
func LoadYAML(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".codeplane", "config.yaml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg := defaultConfig(projectRoot)
	applyYAML(cfg, &raw)
	return cfg, nil
}

func applyYAML(cfg *Config, raw *yamlConfig) {
	if raw.Version != nil {
		cfg.Version = *raw.Version
	}
	if raw.Project.Root != nil {
		if filepath.IsAbs(*raw.Project.Root) {
			cfg.Project.Root = filepath.Clean(*raw.Project.Root)
		} else {
			cfg.Project.Root = filepath.Clean(filepath.Join(cfg.Project.Root, *raw.Project.Root))
		}
	}
	if raw.Project.Name != nil {
		cfg.Project.Name = *raw.Project.Name
	}

	if raw.Server.Host != nil {
		cfg.Server.Host = *raw.Server.Host
	}
	if raw.Server.Port != nil {
		cfg.Server.Port = *raw.Server.Port
	}
	if raw.Server.DebounceSec != nil {
		cfg.Server.DebounceSec = *raw.Server.DebounceSec
	}
	if raw.Server.PollIntervalSec != nil {
		cfg.Server.PollIntervalSec = *raw.Server.PollIntervalSec
	}

	if raw.Indexer.Workers != nil {
		cfg.Indexer.Workers = *raw.Indexer.Workers
	}

	if raw.Index.IndexPath != nil {
		cfg.Index.IndexPath = *raw.Index.IndexPath
	}
	if raw.Index.MaxFileSize != nil {
		cfg.Index.MaxFileSize = *raw.Index.MaxFileSize
	}
	if raw.Index.MaxTotalSizeMB != nil {
		cfg.Index.MaxTotalSizeMB = *raw.Index.MaxTotalSizeMB
	}
	if raw.Index.MaxFileCount != nil {
		cfg.Index.MaxFileCount = *raw.Index.MaxFileCount
	}
	if raw.Index.FollowSymlinks != nil {
		cfg.Index.FollowSymlinks = *raw.Index.FollowSymlinks
	}
	if raw.Index.RespectGitignore != nil {
		cfg.Index.RespectGitignore = *raw.Index.RespectGitignore
	}
	if raw.Index.WatchDebounceMs != nil {
		cfg.Index.WatchDebounceMs = *raw.Index.WatchDebounceMs
	}
	if raw.Index.DriftTolerancePct != nil {
		cfg.Index.DriftTolerancePct = *raw.Index.DriftTolerancePct
	}

	if raw.Logging.Level != nil {
		cfg.Logging.Level = *raw.Logging.Level
	}
	if len(raw.Logging.Outputs) > 0 {
		cfg.Logging.Outputs = raw.Logging.Outputs
	}

	if len(raw.Include) > 0 {
		cfg.Include = raw.Include
	}
	if len(raw.Exclude) > 0 {
		// An explicit exclude block in config.yaml replaces the defaults;
		// mergeConfigs is what unions global and project exclusions.
		cfg.Exclude = raw.Exclude
	}
}
