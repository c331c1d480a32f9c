package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Watch contains configuration for the directory scan loop.
type Watch struct {
	Folders           []string `toml:"folders"`
	CheckInterval     int      `toml:"check_interval"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	SizeCacheEnabled  bool     `toml:"size_cache_enabled"`
}

// Archive contains compression and encryption settings for outbound
// artifacts.
type Archive struct {
	Compression string `toml:"compression"`
	Encryption  bool   `toml:"encryption"`
	Passphrase  string `toml:"passphrase"`
}

// Telegram contains configuration for the remote messaging endpoint.
type Telegram struct {
	Token          string `toml:"token"`
	ChatID         int64  `toml:"chat_id"`
	ForwardChatID  int64  `toml:"forward_chat_id"`
	ForwardEnabled bool   `toml:"forward_enabled"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Limits contains rate-limit pool sizes and retry policy for the
// transport.
type Limits struct {
	MessagesPerSecond float64 `toml:"messages_per_second"`
	UploadsPerMinute  int     `toml:"uploads_per_minute"`
	RetryAttempts     int     `toml:"retry_attempts"`
	RetryDelaySeconds int     `toml:"retry_delay_seconds"`
}

// Aggregator contains configuration for the external event aggregator.
type Aggregator struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Courier.
//
// Configuration sections by subsystem:
//   - Paths: data/staging/log directories and admin API bind address
//   - Watch: monitored folders, scan interval, extension allow-list
//   - Archive: compression level, encryption toggle, passphrase
//   - Telegram: remote endpoint credentials and destinations
//   - Limits: rate-limit pools and retry policy
//   - Aggregator: fire-and-forget event backend
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Watch      Watch      `toml:"watch"`
	Archive    Archive    `toml:"archive"`
	Telegram   Telegram   `toml:"telegram"`
	Limits     Limits     `toml:"limits"`
	Aggregator Aggregator `toml:"aggregator"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/courier/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was actually found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("courier.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the path of the persisted delivery ledger.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.DataDir, "file_history.json")
}

// SizeCachePath returns the path of the persisted size cache.
func (c *Config) SizeCachePath() string {
	return filepath.Join(c.Paths.DataDir, "size_cache.json")
}

// DeliveryLogPath returns the path of the delivery audit database.
func (c *Config) DeliveryLogPath() string {
	return filepath.Join(c.Paths.DataDir, "deliveries.db")
}

// LogFilePath returns the path of the daemon log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "courier.log")
}

// WriteSample writes the embedded sample configuration to path, refusing
// to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
