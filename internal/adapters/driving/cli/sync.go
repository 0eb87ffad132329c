package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

// SyncRunner is the engine surface the sync command drives.
type SyncRunner interface {
	Sync(ctx context.Context, families []domain.Family, scope domain.TenantScope) (*domain.SyncResult, error)
}

var syncTenants []string

var syncCmd = &cobra.Command{
	Use:   "sync [family...]",
	Short: "Run a sync pass",
	Long: `Run one sync pass. With no arguments every entity family is synced;
otherwise only the named families run (users, devices, applications,
policies, subscriptions, groups). --tenant restricts the pass to the
given tenant ids.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	if orchestrator == nil {
		return fmt.Errorf("sync service not initialised")
	}

	var families []domain.Family
	for _, arg := range args {
		family, err := domain.ParseFamily(arg)
		if err != nil {
			return err
		}
		families = append(families, family)
	}

	result, err := orchestrator.Sync(cmd.Context(), families, domain.TenantScope{TenantIDs: syncTenants})
	if err != nil {
		return err
	}

	printResult(cmd, result)
	// Skipped families are permission gaps, not failures; only recorded
	// errors make the run exit non-zero.
	if len(result.ErrorsByTenant) > 0 {
		return fmt.Errorf("%d tenant(s) reported errors", len(result.ErrorsByTenant))
	}
	return nil
}

func printResult(cmd *cobra.Command, result *domain.SyncResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "run %s finished in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "tenants synced: %d, rows written: %d, records skipped: %d\n",
		result.TenantsSynced, result.RowsWritten, result.SkippedRecords)

	families := make([]string, 0, len(result.RowsByFamily))
	for family := range result.RowsByFamily {
		families = append(families, string(family))
	}
	sort.Strings(families)
	for _, family := range families {
		fmt.Fprintf(out, "  %-14s %d\n", family, result.RowsByFamily[domain.Family(family)])
	}

	skipped := make([]string, 0, len(result.SkippedFamilies))
	for tenantID := range result.SkippedFamilies {
		skipped = append(skipped, tenantID)
	}
	sort.Strings(skipped)
	for _, tenantID := range skipped {
		for _, family := range result.SkippedFamilies[tenantID] {
			fmt.Fprintf(out, "skipped [%s]: %s (permission not granted)\n", tenantID, family)
		}
	}

	tenants := make([]string, 0, len(result.ErrorsByTenant))
	for tenantID := range result.ErrorsByTenant {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	for _, tenantID := range tenants {
		for _, msg := range result.ErrorsByTenant[tenantID] {
			fmt.Fprintf(out, "error [%s]: %s\n", tenantID, msg)
		}
	}
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncTenants, "tenant", nil, "restrict the pass to these tenant ids")
	rootCmd.AddCommand(syncCmd)
}
