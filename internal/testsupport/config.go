package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"courier/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Watch.Folders = []string{filepath.Join(base, "watch")}
	cfgVal.Telegram.Token = "test-token"
	cfgVal.Telegram.ChatID = 42
	cfg := &cfgVal

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, folder := range cfg.Watch.Folders {
		if err := os.MkdirAll(folder, 0o755); err != nil {
			t.Fatalf("create watch folder: %v", err)
		}
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithFolders overrides the monitored folders on the test config.
func WithFolders(folders ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Watch.Folders = folders
	}
}

// WithEncryption enables archive encryption with the given passphrase.
func WithEncryption(passphrase string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Archive.Encryption = true
		cfg.Archive.Passphrase = passphrase
	}
}

// WithCompression sets the archive compression level.
func WithCompression(level string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Archive.Compression = level
	}
}
