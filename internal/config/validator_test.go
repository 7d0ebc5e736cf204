package config

import (
	"testing"
)

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{
		Project: Project{Root: "/test/root", Name: "test-project"},
		Index: Index{
			MaxFileSize:    1024 * 1024,
			MaxTotalSizeMB: 1000,
			MaxFileCount:   10000,
		},
		Indexer: Indexer{Workers: 1},
		Server:  Server{PollIntervalSec: 1},
	}

	validator := NewValidator()
	if err := validator.ValidateAndSetDefaults(cfg); err != nil {
		t.Fatalf("ValidateAndSetDefaults failed: %v", err)
	}

	if cfg.Indexer.Workers == 0 {
		t.Errorf("Workers should have been set to CPU count")
	}

	if cfg.Index.IndexPath == "" {
		t.Errorf("IndexPath should have a default value")
	}
}

func TestValidateProjectConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateProjectConfig(&Project{Root: "/test/root"}); err != nil {
		t.Errorf("Expected no error for valid config, got %v", err)
	}

	if err := validator.validateProjectConfig(&Project{Root: ""}); err == nil {
		t.Errorf("Expected error for empty root")
	}
}

func TestValidateIndexConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateIndexConfig(&Index{
		MaxFileSize: 1024 * 1024, MaxTotalSizeMB: 1000, MaxFileCount: 10000,
	}); err != nil {
		t.Errorf("Expected no error for valid config, got %v", err)
	}

	if err := validator.validateIndexConfig(&Index{
		MaxFileSize: 0, MaxTotalSizeMB: 1000, MaxFileCount: 10000,
	}); err == nil {
		t.Errorf("Expected error for zero MaxFileSize")
	}

	if err := validator.validateIndexConfig(&Index{
		MaxFileSize: 1024 * 1024, MaxTotalSizeMB: 0, MaxFileCount: 10000,
	}); err == nil {
		t.Errorf("Expected error for zero MaxTotalSizeMB")
	}

	if err := validator.validateIndexConfig(&Index{
		MaxFileSize: 1024 * 1024, MaxTotalSizeMB: 1000, MaxFileCount: 0,
	}); err == nil {
		t.Errorf("Expected error for zero MaxFileCount")
	}

	if err := validator.validateIndexConfig(&Index{
		MaxFileSize: 200 * 1024 * 1024, MaxTotalSizeMB: 1000, MaxFileCount: 10000,
	}); err == nil {
		t.Errorf("Expected error for MaxFileSize > 100MB")
	}
}

func TestValidateIndexerConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateIndexerConfig(&Indexer{Workers: 4}); err != nil {
		t.Errorf("Expected no error for valid config, got %v", err)
	}

	if err := validator.validateIndexerConfig(&Indexer{Workers: 0}); err != nil {
		t.Errorf("Expected no error for Workers = 0 (auto-detect), got %v", err)
	}

	if err := validator.validateIndexerConfig(&Indexer{Workers: -1}); err == nil {
		t.Errorf("Expected error for Workers = -1")
	}
}

func TestValidateServerConfig(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateServerConfig(&Server{Port: 0, PollIntervalSec: 2}); err != nil {
		t.Errorf("Expected no error for valid config, got %v", err)
	}

	if err := validator.validateServerConfig(&Server{Port: -1, PollIntervalSec: 2}); err == nil {
		t.Errorf("Expected error for negative Port")
	}

	if err := validator.validateServerConfig(&Server{Port: 70000, PollIntervalSec: 2}); err == nil {
		t.Errorf("Expected error for Port > 65535")
	}

	if err := validator.validateServerConfig(&Server{DebounceSec: -1, PollIntervalSec: 2}); err == nil {
		t.Errorf("Expected error for negative DebounceSec")
	}

	if err := validator.validateServerConfig(&Server{PollIntervalSec: 0}); err == nil {
		t.Errorf("Expected error for zero PollIntervalSec")
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := &Config{
		Project: Project{Root: "/test/root", Name: "test-project"},
		Index: Index{
			MaxFileSize:    1024 * 1024,
			MaxTotalSizeMB: 1000,
			MaxFileCount:   10000,
		},
		Indexer: Indexer{Workers: 1},
		Server:  Server{PollIntervalSec: 2},
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}

	invalidCfg := &Config{Project: Project{Root: ""}}
	if err := ValidateConfig(invalidCfg); err == nil {
		t.Errorf("Expected error for invalid config")
	}
}

func TestSetSmartDefaults(t *testing.T) {
	cfg := &Config{
		Project: Project{Root: "/test/root", Name: "test-project"},
		Index: Index{
			MaxFileSize:    1024 * 1024,
			MaxTotalSizeMB: 1000,
			MaxFileCount:   10000,
		},
	}

	validator := NewValidator()
	validator.setSmartDefaults(cfg)

	if cfg.Indexer.Workers == 0 {
		t.Errorf("Workers should have been set")
	}

	if cfg.Index.IndexPath == "" {
		t.Errorf("IndexPath should have been set")
	}

	if cfg.Server.PollIntervalSec == 0 {
		t.Errorf("PollIntervalSec should have been set")
	}
}

func BenchmarkValidateAndSetDefaults(b *testing.B) {
	cfg := &Config{
		Project: Project{Root: "/test/root", Name: "test-project"},
		Index: Index{
			MaxFileSize:    1024 * 1024,
			MaxTotalSizeMB: 1000,
			MaxFileCount:   10000,
		},
	}

	validator := NewValidator()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		testCfg := *cfg
		_ = validator.ValidateAndSetDefaults(&testCfg)
	}
}
