package carriers

import (
	"context"
	"fmt"
	"net/http"

	"carrier-service/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Carrier defines the interface all carrier integrations must implement.
type Carrier interface {
	// Name returns the registry key of the carrier, e.g. "ups".
	Name() string

	// GetRates returns the quotes the carrier offers for the shipment.
	GetRates(ctx context.Context, details models.ShipmentDetails) ([]models.RateResponse, error)

	// CreateShipment books the shipment with the given service.
	CreateShipment(ctx context.Context, details models.ShipmentDetails, serviceCode string) (*models.ShipmentResponse, error)

	// PurchaseLabel fetches the label for a previously created shipment.
	PurchaseLabel(ctx context.Context, shipmentID string) (*models.Label, error)

	// TrackShipment returns the current tracking state.
	TrackShipment(ctx context.Context, trackingNumber string) (*models.TrackingResponse, error)

	// ValidateCredentials reports whether the carrier accepts the credentials.
	ValidateCredentials(ctx context.Context) (bool, error)

	// GetServices lists the service levels the carrier offers.
	GetServices(ctx context.Context) ([]models.CarrierServiceOption, error)
}

var (
	_ Carrier = (*UPSCarrier)(nil)
	_ Carrier = (*CanadaPostCarrier)(nil)
	_ Carrier = (*ShipStationCarrier)(nil)
)

// Production and sandbox endpoints.
const (
	UPSProductionURL        = "https://onlinetools.ups.com"
	UPSSandboxURL           = "https://wwwcie.ups.com"
	CanadaPostProductionURL = "https://soa-gw.canadapost.ca"
	CanadaPostSandboxURL    = "https://ct.soa-gw.canadapost.ca"
)

// Options carries the shared dependencies used to build adapters. Empty base
// URLs fall back to the production or sandbox endpoint chosen by the
// configuration's Sandbox setting.
type Options struct {
	HTTPClient            *http.Client
	UPSBaseURL            string
	CanadaPostBaseURL     string
	ShipStationProxyURL   string
	ShipStationProxyToken string
	UPSTokens             *UPSTokenManager
	Logger                *zap.Logger
}

// New builds the adapter for a stored carrier configuration.
func New(cfg *models.CarrierConfiguration, opts Options) (Carrier, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	switch cfg.CarrierName {
	case models.CarrierUPS:
		baseURL := opts.UPSBaseURL
		if baseURL == "" {
			baseURL = UPSProductionURL
			if cfg.Settings.Sandbox {
				baseURL = UPSSandboxURL
			}
		}
		return NewUPSCarrier(UPSConfig{
			UserID:        cfg.UserID,
			AccountNumber: cfg.AccountNumber,
			Credentials:   cfg.Credentials,
			Settings:      cfg.Settings,
			BaseURL:       baseURL,
		}, opts.UPSTokens, opts.HTTPClient, opts.Logger)

	case models.CarrierCanadaPost:
		baseURL := opts.CanadaPostBaseURL
		if baseURL == "" {
			baseURL = CanadaPostProductionURL
			if cfg.Settings.Sandbox {
				baseURL = CanadaPostSandboxURL
			}
		}
		return NewCanadaPostCarrier(CanadaPostConfig{
			Credentials:    cfg.Credentials,
			Settings:       cfg.Settings,
			CustomerNumber: firstNonEmpty(cfg.Settings.CustomerNumber, cfg.AccountNumber),
			BaseURL:        baseURL,
		}, opts.HTTPClient)

	case models.CarrierShipStation:
		return NewShipStationCarrier(ShipStationConfig{
			Credentials: cfg.Credentials,
			Settings:    cfg.Settings,
			ProxyURL:    opts.ShipStationProxyURL,
			ProxyToken:  opts.ShipStationProxyToken,
		}, opts.HTTPClient)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCarrier, cfg.CarrierName)
	}
}

// IsSupported reports whether New can build an adapter for name.
func IsSupported(name string) bool {
	switch name {
	case models.CarrierUPS, models.CarrierCanadaPost, models.CarrierShipStation:
		return true
	default:
		return false
	}
}

var hundred = decimal.NewFromInt(100)

// applyMarkup sets Markup and TotalRate on every rate when pct is positive.
func applyMarkup(rates []models.RateResponse, pct decimal.Decimal) {
	if !pct.IsPositive() {
		return
	}
	for i := range rates {
		markup := rates[i].Rate.Mul(pct).Div(hundred).Round(2)
		total := rates[i].Rate.Add(markup)
		rates[i].Markup = &markup
		rates[i].TotalRate = &total
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
