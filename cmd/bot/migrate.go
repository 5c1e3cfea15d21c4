package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"issuebot/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Open the configured store and apply the embedded migrations.
Migrations are idempotent; serve applies them too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (driver %s)\n", storage.NormalizeDriver(cfg.Storage.Driver))
		return nil
	},
}
