// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"papercast/internal/config"
	"papercast/internal/ledger"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Bucket = "test-bucket"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Pipeline.RetryBaseDelayMS = 1
	cfg.Gemini.APIKey = "test"
	cfg.TTS.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBucket overrides the storage bucket on the test config.
func WithBucket(bucket string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Storage.Bucket = bucket
	}
}

// WithPapersPerEpisode overrides the episode paper count.
func WithPapersPerEpisode(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.PapersPerEpisode = count
	}
}

// MustOpenLedger opens a ledger store against the test config and closes it
// when the test finishes.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("open ledger store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close ledger store: %v", err)
		}
	})
	return store
}
