package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsSatisfyNormalization(t *testing.T) {
	cfg := Default()
	cfg.Storage.Bucket = "papercast-test"
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Pipeline.PapersPerEpisode != 3 {
		t.Fatalf("papers per episode = %d, want 3", cfg.Pipeline.PapersPerEpisode)
	}
	if cfg.Repository.CacheTTLSeconds != 3600 {
		t.Fatalf("cache ttl = %d, want 3600", cfg.Repository.CacheTTLSeconds)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not expanded: %q", cfg.Paths.DataDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[storage]
bucket = "papercast-prod"

[pipeline]
papers_per_episode = 3
max_retries = 5

[repository]
cache_ttl_seconds = 600

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Storage.Bucket != "papercast-prod" {
		t.Fatalf("bucket = %q", cfg.Storage.Bucket)
	}
	if cfg.Pipeline.MaxRetries != 5 {
		t.Fatalf("max retries = %d", cfg.Pipeline.MaxRetries)
	}
	if cfg.Repository.CacheTTLSeconds != 600 {
		t.Fatalf("cache ttl = %d", cfg.Repository.CacheTTLSeconds)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("log format = %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsMissingBucket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[pipeline]\nmax_retries = 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "storage.bucket") {
		t.Fatalf("expected bucket validation failure, got %v", err)
	}
}

func TestValidateRejectsExcessParallelism(t *testing.T) {
	cfg := Default()
	cfg.Storage.Bucket = "b"
	cfg.Pipeline.SummarizeParallel = 9
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for parallelism above papers_per_episode")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	sample := strings.Replace(SampleConfig(), `bucket = ""`, `bucket = "papercast-sample"`, 1)
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
