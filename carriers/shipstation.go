package carriers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carrier-service/models"

	"github.com/shopspring/decimal"
)

// Proxied edge functions.
const (
	ssFuncRates       = "shipstation-rates"
	ssFuncCreateLabel = "shipstation-create-label"
	ssFuncGetLabel    = "shipstation-get-label"
	ssFuncTrack       = "shipstation-track"
	ssFuncServices    = "shipstation-services"
	ssFuncValidate    = "shipstation-validate"
)

// ShipStationConfig is the per-account configuration of a ShipStation adapter.
type ShipStationConfig struct {
	Credentials models.CarrierCredentials
	Settings    models.CarrierSettings
	ProxyURL    string
	ProxyToken  string
}

// ShipStationCarrier reaches ShipStation through a server-side proxy that
// holds the outbound connection. The account's API key and secret travel in
// each payload.
type ShipStationCarrier struct {
	cfg    ShipStationConfig
	client *vendorClient
}

func NewShipStationCarrier(cfg ShipStationConfig, hc *http.Client) (*ShipStationCarrier, error) {
	if cfg.ProxyURL == "" {
		return nil, fmt.Errorf("%w: shipstation proxy url", ErrMissingCredentials)
	}
	if cfg.Credentials.APIKey == "" || cfg.Credentials.APISecret == "" {
		return nil, fmt.Errorf("%w: shipstation api key and secret", ErrMissingCredentials)
	}
	return &ShipStationCarrier{
		cfg:    cfg,
		client: newVendorClient(models.CarrierShipStation, cfg.ProxyURL, hc),
	}, nil
}

func (s *ShipStationCarrier) Name() string { return models.CarrierShipStation }

type ssCredentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type ssPayload struct {
	Credentials    ssCredentials           `json:"credentials"`
	Shipment       *models.ShipmentDetails `json:"shipment,omitempty"`
	ServiceCode    string                  `json:"service_code,omitempty"`
	ShipmentID     string                  `json:"shipment_id,omitempty"`
	TrackingNumber string                  `json:"tracking_number,omitempty"`
}

// ssID accepts ShipStation identifiers sent as numbers or strings.
type ssID string

func (id *ssID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" {
		*id = ""
		return nil
	}
	*id = ssID(b)
	return nil
}

type ssRate struct {
	ServiceCode       string  `json:"serviceCode"`
	ServiceName       string  `json:"serviceName"`
	ShipmentCost      float64 `json:"shipmentCost"`
	OtherCost         float64 `json:"otherCost"`
	DeliveryDays      *int    `json:"deliveryDays,omitempty"`
	EstimatedDelivery string  `json:"estimatedDelivery,omitempty"`
}

type ssLabel struct {
	ShipmentID     ssID    `json:"shipmentId"`
	TrackingNumber string  `json:"trackingNumber"`
	ServiceCode    string  `json:"serviceCode"`
	ShipmentCost   float64 `json:"shipmentCost"`
	InsuranceCost  float64 `json:"insuranceCost"`
	LabelData      string  `json:"labelData"`
	LabelURL       string  `json:"labelUrl"`
	Format         string  `json:"format"`
}

type ssTracking struct {
	StatusCode            string `json:"status_code"`
	StatusDescription     string `json:"status_description"`
	EstimatedDeliveryDate string `json:"estimated_delivery_date"`
	Events                []struct {
		OccurredAt    string `json:"occurred_at"`
		Description   string `json:"description"`
		CityLocality  string `json:"city_locality"`
		StateProvince string `json:"state_province"`
		CountryCode   string `json:"country_code"`
		EventCode     string `json:"event_code"`
	} `json:"events"`
}

type ssService struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Domestic      bool   `json:"domestic"`
	International bool   `json:"international"`
}

func (s *ShipStationCarrier) call(ctx context.Context, operation, function string, payload ssPayload, out interface{}) error {
	payload.Credentials = ssCredentials{APIKey: s.cfg.Credentials.APIKey, APISecret: s.cfg.Credentials.APISecret}
	r := request{
		Method:  http.MethodPost,
		Path:    "/" + function,
		Headers: map[string]string{},
	}
	if s.cfg.ProxyToken != "" {
		r.Headers["Authorization"] = "Bearer " + s.cfg.ProxyToken
	}
	return s.client.doJSON(ctx, operation, r, payload, out)
}

func (s *ShipStationCarrier) GetRates(ctx context.Context, details models.ShipmentDetails) ([]models.RateResponse, error) {
	var resp struct {
		Rates []ssRate `json:"rates"`
	}
	if err := s.call(ctx, "rate", ssFuncRates, ssPayload{Shipment: &details}, &resp); err != nil {
		return nil, err
	}

	rates := make([]models.RateResponse, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		amount := decimal.NewFromFloat(r.ShipmentCost).Add(decimal.NewFromFloat(r.OtherCost)).Round(2)
		rates = append(rates, models.RateResponse{
			ServiceCode:       r.ServiceCode,
			ServiceName:       r.ServiceName,
			CarrierName:       models.CarrierShipStation,
			Rate:              amount,
			Currency:          "USD",
			DeliveryDays:      r.DeliveryDays,
			EstimatedDelivery: r.EstimatedDelivery,
		})
	}
	applyMarkup(rates, s.cfg.Settings.MarkupPercentage)
	return rates, nil
}

func (s *ShipStationCarrier) CreateShipment(ctx context.Context, details models.ShipmentDetails, serviceCode string) (*models.ShipmentResponse, error) {
	var resp ssLabel
	if err := s.call(ctx, "ship", ssFuncCreateLabel, ssPayload{Shipment: &details, ServiceCode: serviceCode}, &resp); err != nil {
		return nil, err
	}
	if resp.ShipmentID == "" {
		return nil, fmt.Errorf("shipstation ship: %w: missing shipment id", ErrInvalidResponse)
	}

	out := &models.ShipmentResponse{
		ShipmentID:     string(resp.ShipmentID),
		TrackingNumber: resp.TrackingNumber,
		ServiceCode:    firstNonEmpty(resp.ServiceCode, serviceCode),
		CarrierName:    models.CarrierShipStation,
		Cost:           decimal.NewFromFloat(resp.ShipmentCost).Add(decimal.NewFromFloat(resp.InsuranceCost)).Round(2),
		Currency:       "USD",
	}
	label, err := ssLabelFrom(resp)
	if err == nil {
		out.Label = label
	}
	return out, nil
}

func (s *ShipStationCarrier) PurchaseLabel(ctx context.Context, shipmentID string) (*models.Label, error) {
	var resp ssLabel
	if err := s.call(ctx, "label", ssFuncGetLabel, ssPayload{ShipmentID: shipmentID}, &resp); err != nil {
		return nil, err
	}
	return ssLabelFrom(resp)
}

func (s *ShipStationCarrier) TrackShipment(ctx context.Context, trackingNumber string) (*models.TrackingResponse, error) {
	var resp ssTracking
	if err := s.call(ctx, "track", ssFuncTrack, ssPayload{TrackingNumber: trackingNumber}, &resp); err != nil {
		return nil, err
	}

	out := &models.TrackingResponse{
		TrackingNumber:    trackingNumber,
		CarrierName:       models.CarrierShipStation,
		Status:            ssTrackingStatus(resp.StatusCode),
		StatusDescription: resp.StatusDescription,
		Events:            make([]models.TrackingEvent, 0, len(resp.Events)),
	}
	if t, err := time.Parse(time.RFC3339, resp.EstimatedDeliveryDate); err == nil {
		out.EstimatedDelivery = &t
	}
	for _, e := range resp.Events {
		ts, _ := time.Parse(time.RFC3339, e.OccurredAt)
		out.Events = append(out.Events, models.TrackingEvent{
			Timestamp:   ts,
			Description: e.Description,
			Location:    joinNonEmpty(", ", e.CityLocality, e.StateProvince, e.CountryCode),
			Code:        e.EventCode,
		})
	}
	return out, nil
}

func (s *ShipStationCarrier) ValidateCredentials(ctx context.Context) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := s.call(ctx, "validate", ssFuncValidate, ssPayload{}, &resp); err != nil {
		if isAuthFailure(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Valid, nil
}

func (s *ShipStationCarrier) GetServices(ctx context.Context) ([]models.CarrierServiceOption, error) {
	var resp struct {
		Services []ssService `json:"services"`
	}
	if err := s.call(ctx, "services", ssFuncServices, ssPayload{}, &resp); err != nil {
		return nil, err
	}
	out := make([]models.CarrierServiceOption, 0, len(resp.Services))
	for _, svc := range resp.Services {
		out = append(out, models.CarrierServiceOption{
			Code:          svc.Code,
			Name:          svc.Name,
			Domestic:      svc.Domestic,
			International: svc.International,
		})
	}
	return out, nil
}

func ssLabelFrom(l ssLabel) (*models.Label, error) {
	format := strings.ToUpper(firstNonEmpty(l.Format, "PDF"))
	switch {
	case l.LabelData != "":
		data, err := base64.StdEncoding.DecodeString(l.LabelData)
		if err != nil {
			return nil, fmt.Errorf("shipstation label: %w: %v", ErrInvalidResponse, err)
		}
		return &models.Label{Data: data, Format: format}, nil
	case l.LabelURL != "":
		return &models.Label{URL: l.LabelURL, Format: format}, nil
	default:
		return nil, ErrLabelNotAvailable
	}
}

// ssTrackingStatus maps ShipStation status codes to normalized statuses.
func ssTrackingStatus(code string) string {
	switch strings.ToUpper(code) {
	case "AC":
		return models.TrackingStatusPreTransit
	case "IT":
		return models.TrackingStatusInTransit
	case "OD":
		return models.TrackingStatusOutForDelivery
	case "DE":
		return models.TrackingStatusDelivered
	case "EX", "AT":
		return models.TrackingStatusException
	default:
		return models.TrackingStatusUnknown
	}
}
