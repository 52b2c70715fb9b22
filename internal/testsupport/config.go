// Package testsupport holds shared constructors for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"comic2kindle/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Pipeline.Workers = 2

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithMaxVolumeMB overrides the output volume budget on the test config.
func WithMaxVolumeMB(mb int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Output.MaxVolumeSizeMB = mb
	}
}

// WithNamingTemplate overrides the output naming template on the test config.
func WithNamingTemplate(template string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Output.NamingTemplate = template
	}
}
