package carriers

import (
	"encoding/json"
	"testing"

	"carrier-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.CarrierConfiguration
		opts    Options
		want    string
		wantErr error
	}{
		{
			name: "ups",
			cfg: models.CarrierConfiguration{UserID: "u1", CarrierName: models.CarrierUPS,
				Credentials: models.CarrierCredentials{AccessToken: "tok"}},
			want: models.CarrierUPS,
		},
		{
			name: "canada post",
			cfg: models.CarrierConfiguration{UserID: "u1", CarrierName: models.CarrierCanadaPost,
				Credentials: models.CarrierCredentials{Username: "u", Password: "p"}},
			want: models.CarrierCanadaPost,
		},
		{
			name: "shipstation",
			cfg: models.CarrierConfiguration{UserID: "u1", CarrierName: models.CarrierShipStation,
				Credentials: models.CarrierCredentials{APIKey: "k", APISecret: "s"}},
			opts: Options{ShipStationProxyURL: "https://proxy.example.com/functions/v1"},
			want: models.CarrierShipStation,
		},
		{
			name:    "unsupported",
			cfg:     models.CarrierConfiguration{UserID: "u1", CarrierName: "fedex"},
			wantErr: ErrUnsupportedCarrier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(&tt.cfg, tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
		})
	}
}

func TestNew_SandboxBaseURL(t *testing.T) {
	cfg := models.CarrierConfiguration{UserID: "u1", CarrierName: models.CarrierCanadaPost,
		Credentials: models.CarrierCredentials{Username: "u", Password: "p"},
		Settings:    models.CarrierSettings{Sandbox: true}}

	c, err := New(&cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, CanadaPostSandboxURL, c.(*CanadaPostCarrier).client.baseURL)

	cfg.Settings.Sandbox = false
	c, err = New(&cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, CanadaPostProductionURL, c.(*CanadaPostCarrier).client.baseURL)
}

func TestApplyMarkup(t *testing.T) {
	rates := []models.RateResponse{
		{ServiceCode: "a", Rate: decimal.RequireFromString("10.00")},
		{ServiceCode: "b", Rate: decimal.RequireFromString("33.33")},
	}

	applyMarkup(rates, decimal.RequireFromString("12.5"))

	require.NotNil(t, rates[0].Markup)
	assert.Equal(t, "1.25", rates[0].Markup.StringFixed(2))
	assert.Equal(t, "11.25", rates[0].TotalRate.StringFixed(2))
	// 4.16625 rounds to cents
	assert.Equal(t, "4.17", rates[1].Markup.StringFixed(2))
	assert.Equal(t, "37.50", rates[1].TotalRate.StringFixed(2))
}

func TestApplyMarkup_ZeroLeavesRatesUntouched(t *testing.T) {
	rates := []models.RateResponse{{Rate: decimal.NewFromInt(10)}}
	applyMarkup(rates, decimal.Zero)
	assert.Nil(t, rates[0].Markup)
	assert.Nil(t, rates[0].TotalRate)
}

func TestOneOrMany(t *testing.T) {
	var v struct {
		Items oneOrMany[upsCode] `json:"items"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"items":{"Code":"03"}}`), &v))
	require.Len(t, v.Items, 1)
	assert.Equal(t, "03", v.Items[0].Code)

	require.NoError(t, json.Unmarshal([]byte(`{"items":[{"Code":"01"},{"Code":"02"}]}`), &v))
	assert.Len(t, v.Items, 2)

	require.NoError(t, json.Unmarshal([]byte(`{"items":null}`), &v))
	assert.Empty(t, v.Items)
}

func TestTrackingStatusMapping(t *testing.T) {
	assert.Equal(t, models.TrackingStatusDelivered, upsTrackingStatus("d"))
	assert.Equal(t, models.TrackingStatusPreTransit, upsTrackingStatus("M"))
	assert.Equal(t, models.TrackingStatusUnknown, upsTrackingStatus("?"))

	assert.Equal(t, models.TrackingStatusDelivered, cpTrackingStatus("INDUCTION", "2024-01-02"))
	assert.Equal(t, models.TrackingStatusException, cpTrackingStatus("ATTEMPTED", ""))
	assert.Equal(t, models.TrackingStatusInTransit, cpTrackingStatus("INDUCTION", ""))

	assert.Equal(t, models.TrackingStatusException, ssTrackingStatus("AT"))
	assert.Equal(t, models.TrackingStatusUnknown, ssTrackingStatus("UN"))
}
