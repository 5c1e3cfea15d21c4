package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"issuebot/internal/config"
	"issuebot/internal/scheduler"
	"issuebot/internal/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Load()
		if err != nil {
			return err
		}
		if spec := strings.TrimSpace(cfg.Scheduler.Digest); spec != "" {
			if _, err := scheduler.ParseSchedule(spec); err != nil {
				return fmt.Errorf("scheduler.digest: %w", err)
			}
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "config OK")
		store := strings.TrimSpace(cfg.Conversation.Store)
		if store == "" {
			store = "memory"
		}
		fmt.Fprintf(w, "  storage:      %s\n", storage.NormalizeDriver(cfg.Storage.Driver))
		fmt.Fprintf(w, "  conversation: %s\n", store)
		fmt.Fprintf(w, "  super admins: %d\n", len(cfg.Telegram.SuperAdminIDs))
		fmt.Fprintf(w, "  scheduler:    enabled=%t digest=%q\n", cfg.Scheduler.Enabled, cfg.Scheduler.Digest)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}
