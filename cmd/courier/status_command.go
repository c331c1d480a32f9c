package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := fetchStatus(cfg.Paths.APIBind, cfg.Paths.APIToken)
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", cfg.Paths.APIBind, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:            %v\n", status.Running)
			fmt.Fprintf(out, "Monitored folders:  %d\n", len(status.Folders))
			fmt.Fprintf(out, "Ledger entries:     %d\n", status.LedgerEntries)
			fmt.Fprintf(out, "Size cache entries: %d\n", status.SizeCacheEntries)
			fmt.Fprintf(out, "Lock file:          %s\n", status.LockFilePath)
			return nil
		},
	}
}

func fetchStatus(bind, token string) (daemon.Status, error) {
	var status daemon.Status
	req, err := http.NewRequest(http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return status, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}
