package subscriptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

func TestTransform_StatusCollapsesToBoolean(t *testing.T) {
	tc := domain.TenantContext{TenantID: "t"}
	now := time.Now()

	tests := []struct {
		status string
		active bool
	}{
		{status: "Enabled", active: true},
		{status: "Warning", active: false},
		{status: "Suspended", active: false},
		{status: "Deleted", active: false},
		{status: "LockedOut", active: false},
		{status: "", active: false},
	}

	for _, tt := range tests {
		t.Run("status "+tt.status, func(t *testing.T) {
			rec, err := Transform(tc, Raw{ID: "sub-1", Status: tt.status}, now)

			require.NoError(t, err)
			assert.Equal(t, tt.active, rec.IsActive)
		})
	}
}

func TestTransform_CarriesCommerceFields(t *testing.T) {
	rec, err := Transform(domain.TenantContext{TenantID: "t"}, Raw{
		ID:                     "sub-1",
		CommerceSubscriptionID: "commerce-9",
		SkuPartNumber:          "SPE_E5",
		IsTrial:                true,
		TotalLicenses:          25,
		CreatedDateTime:        "2025-01-01T00:00:00Z",
	}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, "commerce-9", rec.CommerceSubscriptionID)
	assert.Equal(t, "SPE_E5", rec.SkuPartNumber)
	assert.True(t, rec.IsTrial)
	assert.Equal(t, 25, rec.TotalLicenses)
	require.NotNil(t, rec.PurchasedAt)
	assert.Equal(t, "2025-01-01T00:00:00Z", *rec.PurchasedAt)
	assert.Nil(t, rec.NextLifecycleAt)
}

func TestTransform_RejectsMissingID(t *testing.T) {
	_, err := Transform(domain.TenantContext{TenantID: "t"}, Raw{Status: "Enabled"}, time.Now())

	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}
