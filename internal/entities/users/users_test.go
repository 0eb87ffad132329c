package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// captureStore records upserted rows per table without a real database.
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

func newMockTenant(t *testing.T, premium bool, reportCalls *int) *graph.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/beta/reports/authenticationMethods/userRegistrationDetails", func(w http.ResponseWriter, _ *http.Request) {
		*reportCalls++
		w.Write(listing(map[string]any{"id": "u1", "isMfaRegistered": true}))
	})
	usersHandler := func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/memberOf") {
			w.Write(listing(
				map[string]any{"@odata.type": "#microsoft.graph.group", "id": "g1"},
				map[string]any{"@odata.type": "#microsoft.graph.directoryRole", "id": "r1"},
			))
			return
		}

		user := map[string]any{
			"id":                "u1",
			"userPrincipalName": "ada@contoso.test",
			"mail":              "ada@contoso.test",
			"displayName":       "Ada",
			"userType":          "Member",
			"accountEnabled":    true,
			"assignedLicenses":  []any{map[string]any{"skuId": "sku-1"}},
		}
		if premium {
			user["signInActivity"] = map[string]any{"lastSignInDateTime": "2026-08-01T12:00:00Z"}
		}
		w.Write(listing(user))
	}
	mux.HandleFunc("/v1.0/users", usersHandler)
	mux.HandleFunc("/v1.0/users/", usersHandler)
	mux.HandleFunc("/beta/users", usersHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return graph.NewClient("tenant-a", graph.StaticTokenProvider("tok"), graph.Options{
		BaseURL:    srv.URL + "/v1.0",
		BetaURL:    srv.URL + "/beta",
		HTTPClient: srv.Client(),
		RateLimit:  graph.RateLimitConfig{RequestsPerSecond: 10000, BurstSize: 10000},
	})
}

func TestSync_PremiumTenant(t *testing.T) {
	reportCalls := 0
	client := newMockTenant(t, true, &reportCalls)
	store := newCaptureStore()
	tc := domain.TenantContext{TenantID: "tenant-a", Premium: true}

	stats, err := New(client, store, zap.NewNop()).Sync(context.Background(), tc)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, 1, reportCalls)

	rows := store.get("users")
	require.Len(t, rows, 1)
	rec, ok := rows[0].(Record)
	require.True(t, ok)

	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "tenant-a", rec.TenantID)
	assert.Equal(t, 1, rec.LicenseCount)
	assert.Equal(t, 1, rec.GroupCount)
	assert.True(t, rec.IsAdmin)
	require.NotNil(t, rec.IsMFARegistered)
	assert.True(t, *rec.IsMFARegistered)
	require.NotNil(t, rec.LastSignIn)
	assert.Equal(t, "2026-08-01T12:00:00Z", *rec.LastSignIn)
}

func TestSync_NonPremiumTenantLeavesMFANull(t *testing.T) {
	reportCalls := 0
	client := newMockTenant(t, false, &reportCalls)
	store := newCaptureStore()
	tc := domain.TenantContext{TenantID: "tenant-a", Premium: false}

	stats, err := New(client, store, zap.NewNop()).Sync(context.Background(), tc)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)
	assert.Zero(t, reportCalls, "the registration report is premium-only")

	rows := store.get("users")
	require.Len(t, rows, 1)
	rec := rows[0].(Record)
	assert.Nil(t, rec.IsMFARegistered)
	assert.Nil(t, rec.LastSignIn)
}

func TestFields_PremiumAddsSignInActivity(t *testing.T) {
	assert.NotContains(t, Fields(false), "signInActivity")
	assert.Contains(t, Fields(true), "signInActivity")
}

func TestTransform_RejectsMissingID(t *testing.T) {
	_, err := Transform(domain.TenantContext{TenantID: "t"}, Raw{}, Enrichment{}, time.Now())

	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func TestTransform_ForcesMFANullWhenNotPremium(t *testing.T) {
	registered := true
	rec, err := Transform(
		domain.TenantContext{TenantID: "t", Premium: false},
		Raw{ID: "u1"},
		Enrichment{MFARegistered: &registered},
		time.Now(),
	)

	require.NoError(t, err)
	assert.Nil(t, rec.IsMFARegistered)
}
