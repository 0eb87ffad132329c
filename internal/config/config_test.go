package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CLIENT_ID", "app-id")
	t.Setenv("CLIENT_SECRET", "app-secret")
	t.Setenv("TENANT_MODE", ModeSingle)
	t.Setenv("TENANT_ID", "tenant-a")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ModeSingle, cfg.TenantMode)
	assert.Equal(t, "./data/tenantsync.db", cfg.DatabasePath)
	assert.Equal(t, 4, cfg.TenantWorkers)
	assert.Equal(t, 3, cfg.FamilyWorkers)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.GraphBaseURL)
	assert.Equal(t, "https://login.microsoftonline.com", cfg.LoginBaseURL)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TENANT_WORKERS", "8")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("REQUESTS_PER_SECOND", "2.5")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8, cfg.TenantWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.InDelta(t, 2.5, cfg.RequestsPerSecond, 1e-9)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TENANT_WORKERS", "zero")
	t.Setenv("MAX_RETRIES", "-3")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.TenantWorkers)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestLoad_ValidatesPerMode(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		ok   bool
	}{
		{
			name: "missing credentials",
			env:  map[string]string{"TENANT_MODE": ModeSingle, "TENANT_ID": "t"},
		},
		{
			name: "single without tenant id",
			env:  map[string]string{"CLIENT_ID": "a", "CLIENT_SECRET": "b", "TENANT_MODE": ModeSingle},
		},
		{
			name: "partner without partner tenant",
			env:  map[string]string{"CLIENT_ID": "a", "CLIENT_SECRET": "b", "TENANT_MODE": ModePartner},
		},
		{
			name: "roster without file",
			env:  map[string]string{"CLIENT_ID": "a", "CLIENT_SECRET": "b", "TENANT_MODE": ModeRoster},
		},
		{
			name: "unknown mode",
			env:  map[string]string{"CLIENT_ID": "a", "CLIENT_SECRET": "b", "TENANT_MODE": "mystery"},
		},
		{
			name: "valid partner",
			env: map[string]string{
				"CLIENT_ID": "a", "CLIENT_SECRET": "b",
				"TENANT_MODE": ModePartner, "PARTNER_TENANT_ID": "partner-t",
			},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"CLIENT_ID", "CLIENT_SECRET", "TENANT_MODE", "TENANT_ID", "PARTNER_TENANT_ID", "TENANTS_FILE"} {
				t.Setenv(key, "")
			}
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load()

			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[tenants]]
tenant_id = "tenant-a"
display_name = "Contoso"

[[tenants]]
tenant_id = "tenant-b"
display_name = "Fabrikam"
`), 0o600))

	roster, err := LoadRoster(path)

	require.NoError(t, err)
	require.Len(t, roster.Tenants, 2)
	assert.Equal(t, "tenant-a", roster.Tenants[0].TenantID)
	assert.Equal(t, "Fabrikam", roster.Tenants[1].DisplayName)
}

func TestLoadRoster_RejectsMissingTenantID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[tenants]]
display_name = "No ID"
`), 0o600))

	_, err := LoadRoster(path)

	assert.Error(t, err)
}

func TestLoadRoster_MissingFile(t *testing.T) {
	_, err := LoadRoster(filepath.Join(t.TempDir(), "absent.toml"))

	assert.Error(t, err)
}
