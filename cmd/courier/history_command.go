package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"courier/internal/ledger"
	"courier/internal/logging"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the delivery history ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			store, err := ledger.Open(ledger.NewJSONFile(cfg.HistoryPath(), logger), logger)
			if err != nil {
				return fmt.Errorf("open history ledger: %w", err)
			}

			snapshot := store.Snapshot()
			if len(snapshot) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deliveries recorded yet.")
				return nil
			}

			type entry struct {
				path   string
				record ledger.FileRecord
			}
			entries := make([]entry, 0, len(snapshot))
			for path, record := range snapshot {
				entries = append(entries, entry{path: path, record: record})
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].record.SequenceID < entries[j].record.SequenceID
			})

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				encryption := "no"
				if e.record.Encrypted {
					encryption = string(e.record.Algorithm)
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", e.record.SequenceID),
					e.path,
					humanize.Bytes(uint64(e.record.OriginalSize)),
					encryption,
					humanize.Time(e.record.LastSentAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Path", "Size", "Encrypted", "Sent"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
