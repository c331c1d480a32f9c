package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	c.normalizeArchive()
	c.normalizeTelegram()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeWatch() error {
	folders := make([]string, 0, len(c.Watch.Folders))
	for _, folder := range c.Watch.Folders {
		trimmed := strings.TrimSpace(folder)
		if trimmed == "" {
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("watch.folders: %w", err)
		}
		folders = append(folders, expanded)
	}
	c.Watch.Folders = folders

	extensions := make([]string, 0, len(c.Watch.AllowedExtensions))
	for _, ext := range c.Watch.AllowedExtensions {
		trimmed := strings.ToLower(strings.TrimSpace(ext))
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		extensions = append(extensions, trimmed)
	}
	c.Watch.AllowedExtensions = extensions
	return nil
}

func (c *Config) normalizeArchive() {
	c.Archive.Compression = strings.ToLower(strings.TrimSpace(c.Archive.Compression))
	if c.Archive.Compression == "" {
		c.Archive.Compression = defaultCompression
	}
}

func (c *Config) normalizeTelegram() {
	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	c.Telegram.BaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.BaseURL), "/")
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = defaultTelegramBaseURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
