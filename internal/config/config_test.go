package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"courier/internal/config"
)

func validConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Watch.Folders = []string{t.TempDir()}
	cfg.Telegram.Token = "test-token"
	cfg.Telegram.ChatID = 42
	return cfg
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRejectsEncryptionWithoutCompression(t *testing.T) {
	cfg := validConfig(t)
	cfg.Archive.Compression = "none"
	cfg.Archive.Encryption = true
	cfg.Archive.Passphrase = "secret"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for encryption with compression none")
	}
	if !strings.Contains(err.Error(), "encryption") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsEncryptionWithoutPassphrase(t *testing.T) {
	cfg := validConfig(t)
	cfg.Archive.Encryption = true
	cfg.Archive.Passphrase = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty passphrase")
	}
}

func TestValidateRejectsUnknownCompression(t *testing.T) {
	cfg := validConfig(t)
	cfg.Archive.Compression = "brotli"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown compression level")
	}
}

func TestValidateRequiresFolders(t *testing.T) {
	cfg := validConfig(t)
	cfg.Watch.Folders = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing watch folders")
	}
}

func TestValidateRequiresForwardChatWhenEnabled(t *testing.T) {
	cfg := validConfig(t)
	cfg.Telegram.ForwardEnabled = true
	cfg.Telegram.ForwardChatID = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing forward chat id")
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched")
	if err := os.MkdirAll(watched, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	configPath := filepath.Join(dir, "config.toml")
	body := `
[watch]
folders = ["` + watched + `"]
check_interval = 15
allowed_extensions = ["PDF", ".txt"]

[telegram]
token = "abc"
chat_id = 7
base_url = "https://example.test/"
`
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: path=%q exists=%v", resolved, exists)
	}
	if cfg.Watch.CheckInterval != 15 {
		t.Fatalf("check_interval = %d, want 15", cfg.Watch.CheckInterval)
	}
	if got := cfg.Watch.AllowedExtensions; len(got) != 2 || got[0] != ".pdf" || got[1] != ".txt" {
		t.Fatalf("allowed_extensions = %v", got)
	}
	if cfg.Telegram.BaseURL != "https://example.test" {
		t.Fatalf("base_url not trimmed: %q", cfg.Telegram.BaseURL)
	}
}

func TestLoadRejectsInconsistentArchiveSettings(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	body := `
[watch]
folders = ["` + dir + `"]

[archive]
compression = "none"
encryption = true
passphrase = "secret"

[telegram]
token = "abc"
chat_id = 7
`
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected Load to fail fast on inconsistent archive settings")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when sample already exists")
	}
}
