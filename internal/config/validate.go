package config

import (
	"errors"
	"fmt"
)

// CompressionLevels enumerates the accepted archive.compression values.
var CompressionLevels = []string{"default", "fast", "none"}

// Validate ensures the configuration is usable. Validation failures are
// fatal at startup: the daemon refuses to run in a known-inconsistent
// configuration.
func (c *Config) Validate() error {
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWatch() error {
	if len(c.Watch.Folders) == 0 {
		return errors.New("watch.folders must list at least one directory")
	}
	if c.Watch.CheckInterval <= 0 {
		return errors.New("watch.check_interval must be positive")
	}
	return nil
}

func (c *Config) validateArchive() error {
	valid := false
	for _, level := range CompressionLevels {
		if c.Archive.Compression == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("archive.compression must be one of %v, got %q", CompressionLevels, c.Archive.Compression)
	}
	if c.Archive.Encryption && c.Archive.Compression == "none" {
		return errors.New("archive.encryption cannot be enabled when archive.compression is \"none\"")
	}
	if c.Archive.Encryption && c.Archive.Passphrase == "" {
		return errors.New("archive.passphrase must be set when archive.encryption is enabled")
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if c.Telegram.Token == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/courier/config.toml"
		}
		return fmt.Errorf("telegram.token is required. Edit %s (create with 'courier config init')", defaultPath)
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id must be set")
	}
	if c.Telegram.ForwardEnabled && c.Telegram.ForwardChatID == 0 {
		return errors.New("telegram.forward_chat_id must be set when telegram.forward_enabled is true")
	}
	if c.Telegram.RequestTimeout <= 0 {
		return errors.New("telegram.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.MessagesPerSecond <= 0 {
		return errors.New("limits.messages_per_second must be positive")
	}
	if c.Limits.UploadsPerMinute <= 0 {
		return errors.New("limits.uploads_per_minute must be positive")
	}
	if c.Limits.RetryAttempts <= 0 {
		return errors.New("limits.retry_attempts must be positive")
	}
	if c.Limits.RetryDelaySeconds <= 0 {
		return errors.New("limits.retry_delay_seconds must be positive")
	}
	return nil
}
