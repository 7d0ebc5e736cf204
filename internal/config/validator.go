package config

import (
	"errors"
	"fmt"
	"runtime"

	cperrors "github.com/codeplane-dev/codeplane/internal/errors"
)

// Validator validates configuration and sets smart defaults.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return cperrors.NewConfigError("project", "", err)
	}

	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return cperrors.NewConfigError("index", "", err)
	}

	if err := v.validateIndexerConfig(&cfg.Indexer); err != nil {
		return cperrors.NewConfigError("indexer", "", err)
	}

	if err := v.validateServerConfig(&cfg.Server); err != nil {
		return cperrors.NewConfigError("server", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}
	if index.MaxTotalSizeMB <= 0 {
		return fmt.Errorf("MaxTotalSizeMB must be positive, got %d", index.MaxTotalSizeMB)
	}
	if index.MaxFileCount <= 0 {
		return fmt.Errorf("MaxFileCount must be positive, got %d", index.MaxFileCount)
	}
	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", index.MaxFileSize)
	}
	return nil
}

func (v *Validator) validateIndexerConfig(idx *Indexer) error {
	if idx.Workers < 0 {
		return fmt.Errorf("Workers cannot be negative, got %d", idx.Workers)
	}
	return nil
}

func (v *Validator) validateServerConfig(s *Server) error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("Port must be between 0 and 65535, got %d", s.Port)
	}
	if s.DebounceSec < 0 {
		return fmt.Errorf("DebounceSec cannot be negative, got %v", s.DebounceSec)
	}
	if s.PollIntervalSec <= 0 {
		return fmt.Errorf("PollIntervalSec must be positive, got %v", s.PollIntervalSec)
	}
	return nil
}

// setSmartDefaults applies smart defaults based on system capabilities,
// matching the teacher's "leave one core for the OS" sizing rule.
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Indexer.Workers == 0 {
		cfg.Indexer.Workers = max(1, runtime.NumCPU()-1)
	}

	if cfg.Index.IndexPath == "" {
		cfg.Index.IndexPath = ".codeplane/index.db"
	}

	if cfg.Server.DebounceSec == 0 {
		cfg.Server.DebounceSec = 0.3
	}

	if cfg.Server.PollIntervalSec == 0 {
		cfg.Server.PollIntervalSec = 2.0
	}

	if cfg.Index.DriftTolerancePct == 0 {
		cfg.Index.DriftTolerancePct = DefaultDriftTolerancePct
	}
}

// ValidateConfig is a convenience function for quick validation.
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
