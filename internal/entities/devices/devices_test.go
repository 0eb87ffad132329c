package devices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

type captureStore struct {
	mu   sync.Mutex
	rows map[string][]any
}

func newCaptureStore() *captureStore {
	return &captureStore{rows: make(map[string][]any)}
}

func (s *captureStore) Upsert(_ context.Context, spec domain.TableSpec, rows []any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[spec.Name] = append(s.rows[spec.Name], rows...)
	return len(rows), nil
}

func (s *captureStore) get(table string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[table]
}

func listing(items ...any) []byte {
	body, _ := json.Marshal(map[string]any{"value": items})
	return body
}

func newMockTenant(t *testing.T, intuneCalls *int) *graph.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/beta/deviceManagement/managedDevices", func(w http.ResponseWriter, _ *http.Request) {
		*intuneCalls++
		w.Write(listing(map[string]any{
			"id":              "dev-1",
			"deviceName":      "LAPTOP-01",
			"operatingSystem": "Windows",
			"complianceState": "compliant",
			"isEncrypted":     true,
			"totalStorage":    "512 MB",
			"freeStorage":     "N/A",
			"physicalMemory":  "10 GB",
		}))
	})
	mux.HandleFunc("/v1.0/devices", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(listing(map[string]any{
			"id":          "dev-1",
			"displayName": "LAPTOP-01",
			"trustType":   "AzureAd",
			"isCompliant": false,
			"isManaged":   true,
		}))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return graph.NewClient("tenant-a", graph.StaticTokenProvider("tok"), graph.Options{
		BaseURL:    srv.URL + "/v1.0",
		BetaURL:    srv.URL + "/beta",
		HTTPClient: srv.Client(),
		RateLimit:  graph.RateLimitConfig{RequestsPerSecond: 10000, BurstSize: 10000},
	})
}

func TestSync_ProvenancesStaySeparate(t *testing.T) {
	intuneCalls := 0
	client := newMockTenant(t, &intuneCalls)
	store := newCaptureStore()
	tc := domain.TenantContext{TenantID: "tenant-a", Premium: true}

	stats, err := New(client, store, zap.NewNop()).Sync(context.Background(), tc)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 1, intuneCalls)

	// The same device id lands in both tables, once per provenance, with
	// no field bleeding between them.
	intuneRows := store.get("devices_intune")
	entraRows := store.get("devices_entra")
	require.Len(t, intuneRows, 1)
	require.Len(t, entraRows, 1)

	intune := intuneRows[0].(IntuneRecord)
	entra := entraRows[0].(EntraRecord)

	assert.Equal(t, "dev-1", intune.DeviceID)
	assert.Equal(t, "dev-1", entra.DeviceID)
	assert.True(t, intune.IsCompliant, "management platform reports compliant")
	require.NotNil(t, entra.IsCompliant)
	assert.False(t, *entra.IsCompliant, "directory reports non-compliant, left as is")
	assert.Nil(t, entra.IsRooted, "directory did not report rootedness")
}

func TestSync_ManagedInventoryFailureDoesNotBlockDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/beta/deviceManagement/managedDevices", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/v1.0/devices", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(listing(map[string]any{"id": "dev-1", "displayName": "LAPTOP-01"}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := graph.NewClient("tenant-a", graph.StaticTokenProvider("tok"), graph.Options{
		BaseURL:    srv.URL + "/v1.0",
		BetaURL:    srv.URL + "/beta",
		HTTPClient: srv.Client(),
		RateLimit:  graph.RateLimitConfig{RequestsPerSecond: 10000, BurstSize: 10000},
	})
	store := newCaptureStore()
	tc := domain.TenantContext{TenantID: "tenant-a", Premium: true}

	stats, err := New(client, store, zap.NewNop()).Sync(context.Background(), tc)

	// The management platform rejecting the grant still surfaces, but the
	// directory inventory runs and its rows land.
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, 1, stats.Rows)
	assert.Empty(t, store.get("devices_intune"))
	require.Len(t, store.get("devices_entra"), 1)
	assert.Equal(t, "dev-1", store.get("devices_entra")[0].(EntraRecord).DeviceID)
}

func TestSync_NonPremiumSkipsManagedInventory(t *testing.T) {
	intuneCalls := 0
	client := newMockTenant(t, &intuneCalls)
	store := newCaptureStore()
	tc := domain.TenantContext{TenantID: "tenant-a", Premium: false}

	stats, err := New(client, store, zap.NewNop()).Sync(context.Background(), tc)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)
	assert.Zero(t, intuneCalls)
	assert.Empty(t, store.get("devices_intune"))
	assert.Len(t, store.get("devices_entra"), 1)
}

func TestTransformIntune_NormalizesStorage(t *testing.T) {
	raw := RawIntune{
		ID:             "dev-1",
		TotalStorage:   "2 TB",
		FreeStorage:    "512 MB",
		PhysicalMemory: "garbage",
	}

	rec, err := TransformIntune(domain.TenantContext{TenantID: "t"}, raw, time.Now())

	require.NoError(t, err)
	require.NotNil(t, rec.TotalStorageGB)
	assert.InDelta(t, 2048, *rec.TotalStorageGB, 1e-9)
	require.NotNil(t, rec.FreeStorageGB)
	assert.InDelta(t, 0.5, *rec.FreeStorageGB, 1e-9)
	assert.Nil(t, rec.PhysicalMemoryGB)
}

func TestTransform_RejectsMissingID(t *testing.T) {
	_, err := TransformIntune(domain.TenantContext{TenantID: "t"}, RawIntune{}, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)

	_, err = TransformEntra(domain.TenantContext{TenantID: "t"}, RawEntra{}, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}
