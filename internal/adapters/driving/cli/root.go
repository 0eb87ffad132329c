// Package cli exposes the engine through a cobra command tree. Commands
// are thin: parsing and presentation only, all work delegated to the
// injected services.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// version is set by goreleaser ldflags.
	version = "dev"

	// orchestrator is injected before Execute.
	orchestrator SyncRunner
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "tenantsync",
	Short: "Sync directory-service entities into a local SQLite store",
	Long: `Tenantsync pulls users, devices, applications, conditional-access
policies, subscriptions and groups from Microsoft-Graph-shaped identity
APIs into a local SQLite database, one row set per tenant.

Writes are idempotent upserts: re-running a sync converges on the same
rows without duplicates, and one tenant's failure never blocks another.`,
}

// SetSyncRunner injects the sync service used by commands.
func SetSyncRunner(r SyncRunner) {
	orchestrator = r
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command under the given context, which
// commands see as cmd.Context(). Cancellation stops in-flight syncs;
// batches already committed stay committed.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tenantsync version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "tenantsync", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
