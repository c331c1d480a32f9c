package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/deliverylog"
	"courier/internal/ledger"
	"courier/internal/logging"
	"courier/internal/sizecache"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all persisted delivery state (ledger and size cache)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("this deletes all delivery history; re-run with --yes to confirm")
			}

			logger := logging.NewNop()
			history, err := ledger.Open(ledger.NewJSONFile(cfg.HistoryPath(), logger), logger)
			if err != nil {
				return fmt.Errorf("open history ledger: %w", err)
			}
			if err := history.Reset(); err != nil {
				return fmt.Errorf("reset ledger: %w", err)
			}
			sizes, err := sizecache.Open(cfg.SizeCachePath(), logger)
			if err != nil {
				return fmt.Errorf("open size cache: %w", err)
			}
			if err := sizes.Reset(); err != nil {
				return fmt.Errorf("reset size cache: %w", err)
			}

			// A running daemon reloads persisted state each cycle, so
			// clearing the files here is safe while it is up.
			fmt.Fprintln(cmd.OutOrStdout(), "Delivery state cleared. All files will be re-delivered on the next cycle.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the destructive reset")
	return cmd
}

func newClearLogsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-logs",
		Short: "Clear the delivery audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := deliverylog.Open(cfg.DeliveryLogPath())
			if err != nil {
				return fmt.Errorf("open delivery log: %w", err)
			}
			defer store.Close()
			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear delivery log: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Delivery audit log cleared.")
			return nil
		},
	}
}
