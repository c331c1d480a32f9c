package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/logging"
	"courier/internal/transport"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test message to the configured chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := transport.NewClient(cfg.Telegram, cfg.Limits, logging.NewNop())

			username, err := client.Verify(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify bot token: %w", err)
			}
			if _, err := client.Broadcast(cmd.Context(), transport.EscapeMarkdownV2("Courier test notification.")); err != nil {
				return fmt.Errorf("send test message: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent as @%s\n", username)
			return nil
		},
	}
}
