package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

type fakeRunner struct {
	families []domain.Family
	scope    domain.TenantScope
	result   *domain.SyncResult
	err      error
}

func (f *fakeRunner) Sync(_ context.Context, families []domain.Family, scope domain.TenantScope) (*domain.SyncResult, error) {
	f.families = families
	f.scope = scope
	return f.result, f.err
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		syncTenants = nil
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func cleanResult() *domain.SyncResult {
	result := domain.NewSyncResult("run-1", time.Now())
	result.RowsWritten = 3
	result.RowsByFamily[domain.FamilyUsers] = 3
	result.TenantsSynced = 1
	return result
}

func TestSyncCmd_ParsesFamiliesAndScope(t *testing.T) {
	runner := &fakeRunner{result: cleanResult()}
	SetSyncRunner(runner)
	defer SetSyncRunner(nil)

	out, err := execute(t, "sync", "users", "devices", "--tenant", "tenant-a")

	require.NoError(t, err)
	assert.Equal(t, []domain.Family{domain.FamilyUsers, domain.FamilyDevices}, runner.families)
	assert.Equal(t, []string{"tenant-a"}, runner.scope.TenantIDs)
	assert.Contains(t, out, "rows written: 3")
	assert.Contains(t, out, "users")
}

func TestSyncCmd_NoArgsMeansAllFamilies(t *testing.T) {
	runner := &fakeRunner{result: cleanResult()}
	SetSyncRunner(runner)
	defer SetSyncRunner(nil)

	_, err := execute(t, "sync")

	require.NoError(t, err)
	assert.Empty(t, runner.families)
	assert.Empty(t, runner.scope.TenantIDs)
}

func TestSyncCmd_RejectsUnknownFamily(t *testing.T) {
	runner := &fakeRunner{result: cleanResult()}
	SetSyncRunner(runner)
	defer SetSyncRunner(nil)

	_, err := execute(t, "sync", "widgets")

	assert.Error(t, err)
}

func TestSyncCmd_TenantErrorsExitNonZero(t *testing.T) {
	result := cleanResult()
	result.RecordError("tenant-b", errors.New("applications: permission denied"))
	runner := &fakeRunner{result: result}
	SetSyncRunner(runner)
	defer SetSyncRunner(nil)

	out, err := execute(t, "sync")

	require.Error(t, err)
	assert.Contains(t, out, "error [tenant-b]")
}

func TestSyncCmd_SkippedFamiliesExitZero(t *testing.T) {
	result := cleanResult()
	result.RecordSkip("tenant-b", domain.FamilyPolicies)
	runner := &fakeRunner{result: result}
	SetSyncRunner(runner)
	defer SetSyncRunner(nil)

	out, err := execute(t, "sync")

	// A permission gap is reported but is not a failure.
	require.NoError(t, err)
	assert.Contains(t, out, "skipped [tenant-b]: policies")
}

func TestSyncCmd_WithoutRunner(t *testing.T) {
	SetSyncRunner(nil)

	_, err := execute(t, "sync")

	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("dev")

	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "tenantsync 1.2.3")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.Contains(t, names, "sync")
	assert.Contains(t, names, "version")
}
