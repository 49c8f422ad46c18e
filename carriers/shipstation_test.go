package carriers_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"carrier-service/carriers"
	"carrier-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShipStation(t *testing.T, proxyURL string) *carriers.ShipStationCarrier {
	t.Helper()
	ss, err := carriers.NewShipStationCarrier(carriers.ShipStationConfig{
		Credentials: models.CarrierCredentials{APIKey: "ss-key", APISecret: "ss-secret"},
		Settings:    models.CarrierSettings{MarkupPercentage: decimal.NewFromInt(5)},
		ProxyURL:    proxyURL,
		ProxyToken:  "proxy-token",
	}, nil)
	require.NoError(t, err)
	return ss
}

type proxyPayload struct {
	Credentials struct {
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	} `json:"credentials"`
	Shipment       *models.ShipmentDetails `json:"shipment"`
	ServiceCode    string                  `json:"service_code"`
	ShipmentID     string                  `json:"shipment_id"`
	TrackingNumber string                  `json:"tracking_number"`
}

func newProxy(t *testing.T, function string, check func(p proxyPayload), reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/"+function, r.URL.Path)
		assert.Equal(t, "Bearer proxy-token", r.Header.Get("Authorization"))

		var p proxyPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "ss-key", p.Credentials.APIKey)
		assert.Equal(t, "ss-secret", p.Credentials.APISecret)
		if check != nil {
			check(p)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestShipStationGetRates(t *testing.T) {
	srv := newProxy(t, "shipstation-rates", func(p proxyPayload) {
		require.NotNil(t, p.Shipment)
		assert.Equal(t, "Montreal", p.Shipment.ToAddress.City)
	}, `{"rates":[
		{"serviceCode":"usps_priority_mail","serviceName":"USPS Priority Mail","shipmentCost":9.5,"otherCost":0.5,"deliveryDays":2},
		{"serviceCode":"usps_first_class_mail","serviceName":"USPS First Class Mail","shipmentCost":4.25,"otherCost":0}
	]}`)

	rates, err := newShipStation(t, srv.URL).GetRates(context.Background(), domesticDetails())
	require.NoError(t, err)
	require.Len(t, rates, 2)

	assert.Equal(t, models.CarrierShipStation, rates[0].CarrierName)
	assert.True(t, decimal.NewFromInt(10).Equal(rates[0].Rate))
	require.NotNil(t, rates[0].TotalRate)
	assert.True(t, decimal.RequireFromString("10.50").Equal(*rates[0].TotalRate))
	require.NotNil(t, rates[0].DeliveryDays)
	assert.Equal(t, 2, *rates[0].DeliveryDays)
	assert.Nil(t, rates[1].DeliveryDays)
}

func TestShipStationCreateShipment(t *testing.T) {
	srv := newProxy(t, "shipstation-create-label", func(p proxyPayload) {
		assert.Equal(t, "usps_priority_mail", p.ServiceCode)
		require.NotNil(t, p.Shipment)
	}, `{"shipmentId":72513480,"trackingNumber":"9400111899223197428490","shipmentCost":9.5,"insuranceCost":1.25,"labelData":"`+
		base64.StdEncoding.EncodeToString([]byte("pdf-bytes"))+`"}`)

	resp, err := newShipStation(t, srv.URL).CreateShipment(context.Background(), domesticDetails(), "usps_priority_mail")
	require.NoError(t, err)
	assert.Equal(t, "72513480", resp.ShipmentID)
	assert.Equal(t, "9400111899223197428490", resp.TrackingNumber)
	assert.True(t, decimal.RequireFromString("10.75").Equal(resp.Cost))
	require.NotNil(t, resp.Label)
	assert.Equal(t, []byte("pdf-bytes"), resp.Label.Data)
	assert.Equal(t, "PDF", resp.Label.Format)
}

func TestShipStationPurchaseLabel(t *testing.T) {
	t.Run("url label", func(t *testing.T) {
		srv := newProxy(t, "shipstation-get-label", func(p proxyPayload) {
			assert.Equal(t, "72513480", p.ShipmentID)
		}, `{"shipmentId":"72513480","labelUrl":"https://labels.example.com/72513480.zpl","format":"zpl"}`)

		label, err := newShipStation(t, srv.URL).PurchaseLabel(context.Background(), "72513480")
		require.NoError(t, err)
		assert.Equal(t, "https://labels.example.com/72513480.zpl", label.URL)
		assert.Equal(t, "ZPL", label.Format)
	})

	t.Run("no label", func(t *testing.T) {
		srv := newProxy(t, "shipstation-get-label", nil, `{"shipmentId":"72513480"}`)

		_, err := newShipStation(t, srv.URL).PurchaseLabel(context.Background(), "72513480")
		assert.ErrorIs(t, err, carriers.ErrLabelNotAvailable)
	})
}

func TestShipStationTrackShipment(t *testing.T) {
	srv := newProxy(t, "shipstation-track", func(p proxyPayload) {
		assert.Equal(t, "9400111899223197428490", p.TrackingNumber)
	}, `{"status_code":"IT","status_description":"In Transit","estimated_delivery_date":"2024-01-18T00:00:00Z",
		"events":[{"occurred_at":"2024-01-16T14:05:00Z","description":"Arrived at USPS Facility","city_locality":"CHICAGO","state_province":"IL","country_code":"US","event_code":"10"}]}`)

	tr, err := newShipStation(t, srv.URL).TrackShipment(context.Background(), "9400111899223197428490")
	require.NoError(t, err)
	assert.Equal(t, models.TrackingStatusInTransit, tr.Status)
	require.NotNil(t, tr.EstimatedDelivery)
	require.Len(t, tr.Events, 1)
	assert.Equal(t, "CHICAGO, IL, US", tr.Events[0].Location)
}

func TestShipStationValidateAndServices(t *testing.T) {
	valid := newProxy(t, "shipstation-validate", nil, `{"valid":true}`)
	ok, err := newShipStation(t, valid.URL).ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	rejected := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer rejected.Close()
	ok, err = newShipStation(t, rejected.URL).ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	services := newProxy(t, "shipstation-services", nil, `{"services":[{"code":"usps_priority_mail","name":"USPS Priority Mail","domestic":true,"international":false}]}`)
	list, err := newShipStation(t, services.URL).GetServices(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Domestic)
}

func TestNewShipStationCarrier_Validation(t *testing.T) {
	_, err := carriers.NewShipStationCarrier(carriers.ShipStationConfig{
		Credentials: models.CarrierCredentials{APIKey: "k", APISecret: "s"},
	}, nil)
	assert.ErrorIs(t, err, carriers.ErrMissingCredentials)

	_, err = carriers.NewShipStationCarrier(carriers.ShipStationConfig{ProxyURL: "http://proxy"}, nil)
	assert.ErrorIs(t, err, carriers.ErrMissingCredentials)
}
