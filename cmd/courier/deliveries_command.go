package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"courier/internal/deliverylog"
)

func newDeliveriesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Show recent delivery attempts from the audit log",
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

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read delivery log: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No delivery attempts recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					entry.Path,
					fmt.Sprintf("%d", entry.Parts),
					humanize.Bytes(uint64(entry.Size)),
					entry.Outcome,
					entry.Detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Time", "Path", "Parts", "Size", "Outcome", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries to show")
	return cmd
}
