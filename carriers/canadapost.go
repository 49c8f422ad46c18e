package carriers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carrier-service/models"

	"github.com/shopspring/decimal"
)

const (
	cpRatePath     = "/rs/ship/price"
	cpServicesPath = "/rs/ship/service"
	cpTrackPath    = "/vis/track/pin/%s/summary"

	cpLanguage = "en-CA"
	cpCurrency = "CAD"
)

// CanadaPostConfig is the per-account configuration of a Canada Post adapter.
type CanadaPostConfig struct {
	Credentials    models.CarrierCredentials
	Settings       models.CarrierSettings
	CustomerNumber string
	BaseURL        string
}

// CanadaPostCarrier implements Carrier against the Canada Post XML web
// services using non-contract shipments.
type CanadaPostCarrier struct {
	cfg      CanadaPostConfig
	client   *vendorClient
	username string
	password string
}

// NewCanadaPostCarrier creates a Canada Post adapter. Username and password
// fall back to the API key and secret.
func NewCanadaPostCarrier(cfg CanadaPostConfig, hc *http.Client) (*CanadaPostCarrier, error) {
	username := firstNonEmpty(cfg.Credentials.Username, cfg.Credentials.APIKey)
	password := firstNonEmpty(cfg.Credentials.Password, cfg.Credentials.APISecret)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: canada post username and password", ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = CanadaPostProductionURL
	}
	return &CanadaPostCarrier{
		cfg:      cfg,
		client:   newVendorClient(models.CarrierCanadaPost, cfg.BaseURL, hc),
		username: username,
		password: password,
	}, nil
}

func (c *CanadaPostCarrier) Name() string { return models.CarrierCanadaPost }

func (c *CanadaPostCarrier) newRequest(method, path, mediaType string) request {
	headers := map[string]string{
		"Accept":          mediaType,
		"Accept-Language": cpLanguage,
	}
	if method == http.MethodPost {
		headers["Content-Type"] = mediaType
	}
	return request{
		Method:    method,
		Path:      path,
		Headers:   headers,
		BasicUser: c.username,
		BasicPass: c.password,
	}
}

// GetRates prices the parcel for every service available on the lane.
func (c *CanadaPostCarrier) GetRates(ctx context.Context, details models.ShipmentDetails) ([]models.RateResponse, error) {
	origin := firstNonEmpty(c.cfg.Settings.OriginPostalCode, details.FromAddress.PostalCode)
	scenario := cpMailingScenario{
		Options:          cpOptionsFor(details.Options),
		Parcel:           cpParcelFor(details.Package),
		OriginPostalCode: cpPostalCode(origin),
		Destination:      cpDestinationFor(details.ToAddress),
	}
	if c.cfg.CustomerNumber != "" {
		scenario.CustomerNumber = c.cfg.CustomerNumber
	} else {
		scenario.QuoteType = "counter"
	}

	var resp cpPriceQuotes
	if err := c.client.doXML(ctx, "rate", c.newRequest(http.MethodPost, cpRatePath, cpRateMediaType), scenario, &resp); err != nil {
		return nil, err
	}

	rates := make([]models.RateResponse, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		due, err := decimal.NewFromString(strings.TrimSpace(q.PriceDetails.Due))
		if err != nil {
			continue
		}
		rates = append(rates, models.RateResponse{
			ServiceCode:       q.ServiceCode,
			ServiceName:       q.ServiceName,
			CarrierName:       models.CarrierCanadaPost,
			Rate:              due,
			Currency:          cpCurrency,
			DeliveryDays:      parseDays(q.ServiceStandard.ExpectedTransitTime),
			EstimatedDelivery: q.ServiceStandard.ExpectedDeliveryDate,
		})
	}

	applyMarkup(rates, c.cfg.Settings.MarkupPercentage)
	return rates, nil
}

// CreateShipment creates a non-contract shipment. The label is fetched
// separately with PurchaseLabel.
func (c *CanadaPostCarrier) CreateShipment(ctx context.Context, details models.ShipmentDetails, serviceCode string) (*models.ShipmentResponse, error) {
	if c.cfg.CustomerNumber == "" {
		return nil, fmt.Errorf("%w: canada post customer number", ErrMissingCredentials)
	}

	from, to := details.FromAddress, details.ToAddress
	spec := cpDeliverySpec{
		ServiceCode: serviceCode,
		Sender: cpSender{
			Name:         from.Name,
			Company:      firstNonEmpty(from.Company, from.Name),
			ContactPhone: from.Phone,
			Address:      cpAddressFor(from, false),
		},
		Destination: cpRecipient{
			Name:        to.Name,
			Company:     to.Company,
			ClientVoice: to.Phone,
			Address:     cpAddressFor(to, true),
		},
		Options: cpOptionsFor(details.Options),
		Parcel:  cpParcelFor(details.Package),
	}
	if details.Reference != "" {
		spec.References = &cpReferences{CustomerRef1: details.Reference}
	}
	body := cpNonContractShipment{
		RequestedShippingPoint: cpPostalCode(firstNonEmpty(c.cfg.Settings.OriginPostalCode, from.PostalCode)),
		DeliverySpec:           spec,
	}

	var info cpShipmentInfo
	path := fmt.Sprintf("/rs/%s/ncshipment", url.PathEscape(c.cfg.CustomerNumber))
	if err := c.client.doXML(ctx, "ship", c.newRequest(http.MethodPost, path, cpNCShipmentMediaType), body, &info); err != nil {
		return nil, err
	}
	if info.ShipmentID == "" {
		return nil, fmt.Errorf("canada post ship: %w: missing shipment id", ErrInvalidResponse)
	}

	out := &models.ShipmentResponse{
		ShipmentID:     info.ShipmentID,
		TrackingNumber: info.TrackingPIN,
		ServiceCode:    serviceCode,
		CarrierName:    models.CarrierCanadaPost,
		Cost:           decimal.Zero,
		Currency:       cpCurrency,
	}

	// The receipt carries the charged amount. It is informational, so a
	// failure leaves the cost at zero.
	if link, ok := info.link("receipt"); ok {
		var receipt cpShipmentReceipt
		if err := c.client.doXML(ctx, "receipt", c.newRequest(http.MethodGet, link.Href, firstNonEmpty(link.MediaType, cpNCShipmentMediaType)), nil, &receipt); err == nil {
			if amount, err := decimal.NewFromString(receipt.CCReceiptDetails.ChargeAmount); err == nil {
				out.Cost = amount
			}
			if receipt.CCReceiptDetails.Currency != "" {
				out.Currency = receipt.CCReceiptDetails.Currency
			}
		}
	}
	return out, nil
}

// PurchaseLabel downloads the PDF label linked from the shipment.
func (c *CanadaPostCarrier) PurchaseLabel(ctx context.Context, shipmentID string) (*models.Label, error) {
	if c.cfg.CustomerNumber == "" {
		return nil, fmt.Errorf("%w: canada post customer number", ErrMissingCredentials)
	}

	var info cpShipmentInfo
	path := fmt.Sprintf("/rs/%s/ncshipment/%s", url.PathEscape(c.cfg.CustomerNumber), url.PathEscape(shipmentID))
	if err := c.client.doXML(ctx, "shipment", c.newRequest(http.MethodGet, path, cpNCShipmentMediaType), nil, &info); err != nil {
		return nil, err
	}

	link, ok := info.link("label")
	if !ok {
		return nil, ErrLabelNotAvailable
	}
	data, err := c.client.do(ctx, "label", c.newRequest(http.MethodGet, link.Href, firstNonEmpty(link.MediaType, "application/pdf")))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrLabelNotAvailable
	}
	return &models.Label{Data: data, Format: "PDF"}, nil
}

// TrackShipment reads the tracking summary of a PIN.
func (c *CanadaPostCarrier) TrackShipment(ctx context.Context, trackingNumber string) (*models.TrackingResponse, error) {
	var resp cpTrackingSummary
	path := fmt.Sprintf(cpTrackPath, url.PathEscape(trackingNumber))
	if err := c.client.doXML(ctx, "track", c.newRequest(http.MethodGet, path, cpTrackMediaType), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.PinSummary) == 0 {
		return nil, fmt.Errorf("canada post track: %w: empty summary", ErrInvalidResponse)
	}
	s := resp.PinSummary[0]

	out := &models.TrackingResponse{
		TrackingNumber:    trackingNumber,
		CarrierName:       models.CarrierCanadaPost,
		Status:            cpTrackingStatus(s.EventType, s.ActualDeliveryDate),
		StatusDescription: s.EventDescription,
		Events:            []models.TrackingEvent{},
	}
	if t, err := time.Parse("2006-01-02", s.ExpectedDeliveryDate); err == nil {
		out.EstimatedDelivery = &t
	}
	if s.EventDescription != "" {
		ts, _ := time.Parse("20060102:150405", s.EventDateTime)
		out.Events = append(out.Events, models.TrackingEvent{
			Timestamp:   ts,
			Description: s.EventDescription,
			Location:    s.EventLocation,
			Code:        s.EventType,
		})
	}
	return out, nil
}

// ValidateCredentials calls the service discovery endpoint, which requires
// valid API credentials.
func (c *CanadaPostCarrier) ValidateCredentials(ctx context.Context) (bool, error) {
	if _, err := c.services(ctx); err != nil {
		if isAuthFailure(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *CanadaPostCarrier) GetServices(ctx context.Context) ([]models.CarrierServiceOption, error) {
	return c.services(ctx)
}

func (c *CanadaPostCarrier) services(ctx context.Context) ([]models.CarrierServiceOption, error) {
	var resp cpServices
	if err := c.client.doXML(ctx, "services", c.newRequest(http.MethodGet, cpServicesPath, cpRateMediaType), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.CarrierServiceOption, 0, len(resp.Services))
	for _, s := range resp.Services {
		out = append(out, models.CarrierServiceOption{
			Code:          s.ServiceCode,
			Name:          s.ServiceName,
			Domestic:      strings.HasPrefix(s.ServiceCode, "DOM."),
			International: strings.HasPrefix(s.ServiceCode, "USA.") || strings.HasPrefix(s.ServiceCode, "INT."),
		})
	}
	return out, nil
}

func cpDestinationFor(a models.Address) cpDestination {
	switch strings.ToUpper(a.Country) {
	case "CA":
		return cpDestination{Domestic: &cpDomestic{PostalCode: cpPostalCode(a.PostalCode)}}
	case "US":
		return cpDestination{UnitedStates: &cpUnitedStates{ZipCode: strings.TrimSpace(a.PostalCode)}}
	default:
		return cpDestination{International: &cpInternational{CountryCode: strings.ToUpper(a.Country)}}
	}
}

func cpAddressFor(a models.Address, withCountry bool) cpAddressDetails {
	d := cpAddressDetails{
		AddressLine1:  a.Street1,
		AddressLine2:  a.Street2,
		City:          a.City,
		ProvState:     strings.ToUpper(a.State),
		PostalZipCode: a.PostalCode,
	}
	if strings.EqualFold(a.Country, "CA") {
		d.PostalZipCode = cpPostalCode(a.PostalCode)
	}
	if withCountry {
		d.CountryCode = strings.ToUpper(a.Country)
	}
	return d
}

// cpParcelFor converts to kilograms and centimetres, the only units Canada
// Post accepts.
func cpParcelFor(p models.Package) cpParcel {
	parcel := cpParcel{Weight: formatMeasure(p.WeightKg(), 3)}
	if p.HasDimensions() {
		l, w, h := p.DimensionsCm()
		parcel.Dimensions = &cpDimensions{
			Length: formatMeasure(l, 1),
			Width:  formatMeasure(w, 1),
			Height: formatMeasure(h, 1),
		}
	}
	return parcel
}

func cpOptionsFor(o models.ShipmentOptions) *cpOptions {
	var opts []cpOption
	if o.SignatureRequired {
		opts = append(opts, cpOption{Code: "SO"})
	}
	if o.Insurance.IsPositive() {
		opts = append(opts, cpOption{Code: "COV", Amount: o.Insurance.StringFixed(2)})
	}
	if len(opts) == 0 {
		return nil
	}
	return &cpOptions{Options: opts}
}

func cpPostalCode(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

func cpTrackingStatus(eventType, actualDelivery string) string {
	if actualDelivery != "" {
		return models.TrackingStatusDelivered
	}
	t := strings.ToUpper(eventType)
	switch {
	case t == "":
		return models.TrackingStatusUnknown
	case strings.Contains(t, "ATTEMPT"), strings.Contains(t, "EXCEPTION"), strings.Contains(t, "RETURN"):
		return models.TrackingStatusException
	case strings.Contains(t, "DELIVERED"):
		return models.TrackingStatusDelivered
	case strings.Contains(t, "OUT"):
		return models.TrackingStatusOutForDelivery
	case strings.Contains(t, "ELECTRONIC"), strings.Contains(t, "INFO"):
		return models.TrackingStatusPreTransit
	default:
		return models.TrackingStatusInTransit
	}
}
