package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"courier/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.WriteSample(target); err != nil {
				return fmt.Errorf("write sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set telegram token and chat_id before running courierd.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data directory:    %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Staging directory: %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "Log directory:     %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Monitored folders: %s\n", strings.Join(cfg.Watch.Folders, ", "))
			fmt.Fprintf(out, "Check interval:    %ds\n", cfg.Watch.CheckInterval)
			fmt.Fprintf(out, "Size cache:        %t\n", cfg.Watch.SizeCacheEnabled)
			fmt.Fprintf(out, "Compression:       %s\n", cfg.Archive.Compression)
			fmt.Fprintf(out, "Encryption:        %t\n", cfg.Archive.Encryption)
			fmt.Fprintf(out, "Telegram token:    %s\n", redactSecret(cfg.Telegram.Token))
			fmt.Fprintf(out, "Chat id:           %d\n", cfg.Telegram.ChatID)
			fmt.Fprintf(out, "Forwarding:        %t\n", cfg.Telegram.ForwardEnabled)
			if cfg.Aggregator.URL != "" {
				fmt.Fprintf(out, "Aggregator:        %s\n", cfg.Aggregator.URL)
			}
			if cfg.Paths.APIBind != "" {
				fmt.Fprintf(out, "Admin API:         %s\n", cfg.Paths.APIBind)
			}
			return nil
		},
	}
}

func redactSecret(value string) string {
	if value == "" {
		return "(not set)"
	}
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintf(out, "No config file found; defaults in effect (%s)\n", path)
			} else {
				fmt.Fprintf(out, "Configuration at %s is valid\n", path)
			}
			fmt.Fprintf(out, "Monitored folders: %d\n", len(cfg.Watch.Folders))
			return nil
		},
	}
}
