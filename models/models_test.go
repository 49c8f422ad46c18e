package models_test

import (
	"testing"
	"time"

	"carrier-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDetails() models.ShipmentDetails {
	return models.ShipmentDetails{
		FromAddress: models.Address{Name: "Warehouse", Street1: "1 Main St", City: "Ottawa", PostalCode: "K1A 0B1", Country: "CA"},
		ToAddress:   models.Address{Name: "Customer", Street1: "2 Rue St", City: "Montreal", PostalCode: "H2X 1K4", Country: "CA"},
		Package:     models.Package{Weight: 1.5},
	}
}

func TestShipmentDetailsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *models.ShipmentDetails)
		wantErr bool
	}{
		{"valid", func(*models.ShipmentDetails) {}, false},
		{"zero weight", func(d *models.ShipmentDetails) { d.Package.Weight = 0 }, true},
		{"bad unit", func(d *models.ShipmentDetails) { d.Package.WeightUnit = "stone" }, true},
		{"three letter country", func(d *models.ShipmentDetails) { d.ToAddress.Country = "CAN" }, true},
		{"missing street", func(d *models.ShipmentDetails) { d.FromAddress.Street1 = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDetails()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPackageConversions(t *testing.T) {
	p := models.Package{Weight: 1, WeightUnit: models.WeightUnitKG, Length: 10, Width: 20, Height: 30, DimensionUnit: models.DimensionUnitCM}
	assert.InDelta(t, 2.2046, p.WeightLb(), 0.001)
	assert.InDelta(t, 1.0, p.WeightKg(), 1e-9)
	l, w, h := p.DimensionsIn()
	assert.InDelta(t, 3.937, l, 0.001)
	assert.InDelta(t, 7.874, w, 0.001)
	assert.InDelta(t, 11.811, h, 0.001)
	assert.True(t, p.HasDimensions())

	lb := models.Package{Weight: 2.2}
	assert.InDelta(t, 0.998, lb.WeightKg(), 0.001)
	assert.False(t, lb.HasDimensions())
}

func TestEffectiveRate(t *testing.T) {
	r := models.RateResponse{Rate: decimal.RequireFromString("10.00")}
	assert.Equal(t, "10.00", r.EffectiveRate().StringFixed(2))

	total := decimal.RequireFromString("11.50")
	r.TotalRate = &total
	assert.Equal(t, "11.50", r.EffectiveRate().StringFixed(2))
}

func TestCredentialsTokenValidFor(t *testing.T) {
	now := time.Now()
	soon := now.Add(10 * time.Minute)
	later := now.Add(2 * time.Hour)

	assert.False(t, models.CarrierCredentials{}.TokenValidFor(now, 0))
	assert.False(t, models.CarrierCredentials{AccessToken: "t"}.TokenValidFor(now, 0))
	assert.True(t, models.CarrierCredentials{AccessToken: "t", TokenExpiresAt: &soon}.TokenValidFor(now, 0))
	assert.False(t, models.CarrierCredentials{AccessToken: "t", TokenExpiresAt: &soon}.TokenValidFor(now, 30*time.Minute))
	assert.True(t, models.CarrierCredentials{AccessToken: "t", TokenExpiresAt: &later}.TokenValidFor(now, 30*time.Minute))
}

func TestCredentialsRedacted(t *testing.T) {
	c := models.CarrierCredentials{Username: "merchant", Password: "abc", APIKey: "key-123456", RefreshToken: ""}
	r := c.Redacted()
	assert.Equal(t, "merchant", r.Username)
	assert.Equal(t, "****", r.Password)
	assert.Equal(t, "****3456", r.APIKey)
	assert.Empty(t, r.RefreshToken)
}

func TestCredentialsMergeStored(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	stored := models.CarrierCredentials{
		APIKey: "key-123456", APISecret: "secret-abcdef",
		AccessToken: "access-1111", RefreshToken: "refresh-2222", TokenExpiresAt: &expires,
	}

	merged := models.CarrierCredentials{APISecret: "rotated-secret"}.MergeStored(stored)
	assert.Equal(t, "key-123456", merged.APIKey)
	assert.Equal(t, "rotated-secret", merged.APISecret)
	assert.Equal(t, "refresh-2222", merged.RefreshToken)
	assert.Equal(t, &expires, merged.TokenExpiresAt)

	merged = stored.Redacted().MergeStored(stored)
	assert.Equal(t, stored, merged)

	later := expires.Add(time.Hour)
	merged = models.CarrierCredentials{AccessToken: "access-3333", TokenExpiresAt: &later}.MergeStored(stored)
	assert.Equal(t, "access-3333", merged.AccessToken)
	assert.Equal(t, "refresh-2222", merged.RefreshToken)
	assert.Equal(t, &later, merged.TokenExpiresAt)
}

func TestCarrierSettingsScan(t *testing.T) {
	var s models.CarrierSettings
	require.NoError(t, s.Scan([]byte(`{"markup_percentage":"12.5","sandbox":true}`)))
	assert.True(t, s.Sandbox)
	assert.Equal(t, "12.5", s.MarkupPercentage.String())

	require.NoError(t, s.Scan(nil))
	assert.Error(t, s.Scan(42))

	v, err := s.Value()
	require.NoError(t, err)
	assert.Contains(t, v, `"markup_percentage":"12.5"`)
}
