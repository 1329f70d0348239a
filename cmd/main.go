// jobmate-listing-service
//
// Job listing lifecycle and interaction analytics.
//
//   - Ages postings active → dump (7 days) → inactive (30 days dumped),
//     once at startup and then daily at TRANSITIONS_RUN_AT UTC.
//   - Manual reactivate / dump / inactive for recruiters and admins.
//   - Per-day visit, view and click buckets with dashboard, range and CSV
//     reports.
//
// Exposes a REST API used by the Gateway and a gRPC service for internal
// callers. Publishes EVENT_JOB_STATUS_CHANGED and EVENT_LIFECYCLE_PASS to
// Redis or NATS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "listing-service",
	Short: "Job listing lifecycle and analytics service",
	Long: `listing-service ages job postings through active, dump and inactive and
records site visits, listing views and outbound clicks into daily buckets.

Examples:
  listing-service serve                  # HTTP + gRPC + daily scheduler
  listing-service migrate                # apply SQL migrations and exit
  listing-service process-transitions    # run one lifecycle pass and exit`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"),
		"optional config file (toml, yaml or json); environment variables take precedence")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(processTransitionsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
