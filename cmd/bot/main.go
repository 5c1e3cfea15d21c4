// Command bot runs the issue announcement bot and its operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgPath string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Issue announcement bot for Bale / Telegram",
	Long: `bot registers chat users, lets admins broadcast issues to everyone and
announces when an issue is resolved.

Configuration comes from --config (JSON or YAML) overlaid by environment
variables (BOT_TOKEN, BOT_API_URL, DATABASE_URL, ADMIN_ID, ADMIN_IDS,
REDIS_URL, LOG_LEVEL), which may also be placed in a .env file.

Examples:
  bot                                  # serve with env-only config
  bot serve --config config.yaml       # serve with a config file
  bot migrate                          # create or upgrade the schema
  bot user set-role 12345 admin        # promote a user
  bot issues                           # list open issues`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv()
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to a JSON or YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (skipped when missing)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(issuesCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
