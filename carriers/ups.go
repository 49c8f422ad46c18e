package carriers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"carrier-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	upsRatePath          = "/api/rating/v2403/Shop"
	upsShipPath          = "/api/shipments/v2403/ship"
	upsLabelRecoveryPath = "/api/labels/v1/recovery"
	upsTrackPath         = "/api/track/v1/details/"

	upsTransactionSrc = "carrier-service"
	upsLabelFormat    = "GIF"
)

// upsServices is the UPS service catalogue. UPS has no listing endpoint.
var upsServices = []models.CarrierServiceOption{
	{Code: "01", Name: "UPS Next Day Air", Domestic: true},
	{Code: "02", Name: "UPS 2nd Day Air", Domestic: true},
	{Code: "03", Name: "UPS Ground", Domestic: true},
	{Code: "12", Name: "UPS 3 Day Select", Domestic: true},
	{Code: "13", Name: "UPS Next Day Air Saver", Domestic: true},
	{Code: "14", Name: "UPS Next Day Air Early", Domestic: true},
	{Code: "59", Name: "UPS 2nd Day Air A.M.", Domestic: true},
	{Code: "07", Name: "UPS Worldwide Express", International: true},
	{Code: "08", Name: "UPS Worldwide Expedited", International: true},
	{Code: "11", Name: "UPS Standard", International: true},
	{Code: "54", Name: "UPS Worldwide Express Plus", International: true},
	{Code: "65", Name: "UPS Worldwide Saver", International: true},
}

func upsServiceName(code, fallback string) string {
	for _, s := range upsServices {
		if s.Code == code {
			return s.Name
		}
	}
	if fallback != "" {
		return fallback
	}
	return "UPS " + code
}

// UPSConfig is the per-account configuration of a UPS adapter.
type UPSConfig struct {
	UserID        string
	AccountNumber string
	Credentials   models.CarrierCredentials
	Settings      models.CarrierSettings
	BaseURL       string
}

// UPSCarrier implements Carrier against the UPS REST APIs.
type UPSCarrier struct {
	cfg    UPSConfig
	client *vendorClient
	tokens *UPSTokenManager
	logger *zap.Logger
	now    func() time.Time
}

// NewUPSCarrier creates a UPS adapter. When tokens is nil the adapter can only
// use the access token it was configured with.
func NewUPSCarrier(cfg UPSConfig, tokens *UPSTokenManager, hc *http.Client, logger *zap.Logger) (*UPSCarrier, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("%w: ups user id", ErrMissingCredentials)
	}
	if tokens == nil && cfg.Credentials.AccessToken == "" {
		return nil, fmt.Errorf("%w: ups access token", ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = UPSProductionURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UPSCarrier{
		cfg:    cfg,
		client: newVendorClient(models.CarrierUPS, cfg.BaseURL, hc),
		tokens: tokens,
		logger: logger.With(zap.String("carrier", models.CarrierUPS)),
		now:    time.Now,
	}, nil
}

func (u *UPSCarrier) Name() string { return models.CarrierUPS }

func (u *UPSCarrier) accessToken(ctx context.Context, lookahead time.Duration) (string, error) {
	if u.tokens == nil {
		if u.cfg.Credentials.TokenValidFor(u.now(), lookahead) {
			return u.cfg.Credentials.AccessToken, nil
		}
		return "", ErrReauthorizationRequired
	}
	return u.tokens.EnsureValidToken(ctx, u.cfg.UserID, lookahead)
}

func (u *UPSCarrier) headers(token string) map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + token,
		"transId":        uuid.New().String(),
		"transactionSrc": upsTransactionSrc,
	}
}

// GetRates shops every UPS service for the shipment.
func (u *UPSCarrier) GetRates(ctx context.Context, details models.ShipmentDetails) ([]models.RateResponse, error) {
	token, err := u.accessToken(ctx, RateTokenLookahead)
	if err != nil {
		return nil, err
	}

	var body upsRateRequest
	body.RateRequest.Request = upsRequestHeader{
		RequestOption:        "Shop",
		TransactionReference: &upsTransactionReference{CustomerContext: details.Reference},
	}
	shipment := upsRateShipment{
		Shipper:  u.party(details.FromAddress, true),
		ShipTo:   u.party(details.ToAddress, false),
		ShipFrom: u.party(details.FromAddress, false),
		Package:  upsPackageFor(details, true),
		DeliveryTimeInformation: &struct {
			PackageBillType string `json:"PackageBillType"`
		}{PackageBillType: "03"},
	}
	if u.cfg.Settings.NegotiatedRates {
		indicator := ""
		shipment.ShipmentRatingOptions = &upsRatingOptions{NegotiatedRatesIndicator: &indicator}
	}
	if details.Options.SaturdayDelivery {
		indicator := ""
		shipment.ShipmentServiceOptions = &upsShipmentServiceOptions{SaturdayDeliveryIndicator: &indicator}
	}
	body.RateRequest.Shipment = shipment

	var resp upsRateResponse
	err = u.client.doJSON(ctx, "rate", request{
		Method:  http.MethodPost,
		Path:    upsRatePath,
		Headers: u.headers(token),
	}, body, &resp)
	if err != nil {
		return nil, err
	}

	rates := make([]models.RateResponse, 0, len(resp.RateResponse.RatedShipment))
	for _, rs := range resp.RateResponse.RatedShipment {
		charge := rs.TotalCharges
		negotiated := false
		if u.cfg.Settings.NegotiatedRates && rs.NegotiatedRateCharges != nil && rs.NegotiatedRateCharges.TotalCharge.MonetaryValue != "" {
			charge = rs.NegotiatedRateCharges.TotalCharge
			negotiated = true
		}
		amount, err := decimal.NewFromString(charge.MonetaryValue)
		if err != nil {
			u.logger.Warn("Skipping UPS rate with unparseable amount",
				zap.String("service_code", rs.Service.Code),
				zap.String("amount", charge.MonetaryValue),
			)
			continue
		}

		rate := models.RateResponse{
			ServiceCode: rs.Service.Code,
			ServiceName: upsServiceName(rs.Service.Code, rs.Service.Description),
			CarrierName: models.CarrierUPS,
			Rate:        amount,
			Currency:    charge.CurrencyCode,
			Negotiated:  negotiated,
		}
		if rs.TimeInTransit != nil {
			arrival := rs.TimeInTransit.ServiceSummary.EstimatedArrival
			rate.DeliveryDays = parseDays(arrival.BusinessDaysInTransit)
			if t, err := time.Parse("20060102", arrival.Arrival.Date); err == nil {
				rate.EstimatedDelivery = t.Format("2006-01-02")
			}
		}
		if rate.DeliveryDays == nil && rs.GuaranteedDelivery != nil {
			rate.DeliveryDays = parseDays(rs.GuaranteedDelivery.BusinessDaysInTransit)
		}
		rates = append(rates, rate)
	}

	applyMarkup(rates, u.cfg.Settings.MarkupPercentage)
	return rates, nil
}

// CreateShipment books a shipment billed to the configured account.
func (u *UPSCarrier) CreateShipment(ctx context.Context, details models.ShipmentDetails, serviceCode string) (*models.ShipmentResponse, error) {
	if u.cfg.AccountNumber == "" {
		return nil, fmt.Errorf("%w: ups account number", ErrMissingCredentials)
	}
	token, err := u.accessToken(ctx, ShipmentTokenLookahead)
	if err != nil {
		return nil, err
	}

	var body upsShipRequest
	body.ShipmentRequest.Request = upsRequestHeader{RequestOption: "nonvalidate"}

	shipment := upsShipment{
		Description: details.Reference,
		Shipper:     u.party(details.FromAddress, true),
		ShipTo:      u.party(details.ToAddress, false),
		ShipFrom:    u.party(details.FromAddress, false),
		Service:     upsCode{Code: serviceCode, Description: upsServiceName(serviceCode, "")},
		Package:     []upsPackage{upsPackageFor(details, false)},
	}
	// 01: transportation charges billed to the shipper account
	charge := upsShipmentCharge{Type: "01"}
	charge.BillShipper.AccountNumber = u.cfg.AccountNumber
	shipment.PaymentInformation.ShipmentCharge = []upsShipmentCharge{charge}

	if u.cfg.Settings.NegotiatedRates {
		indicator := ""
		shipment.ShipmentRatingOptions = &upsRatingOptions{NegotiatedRatesIndicator: &indicator}
	}
	if details.Options.SaturdayDelivery {
		indicator := ""
		shipment.ShipmentServiceOptions = &upsShipmentServiceOptions{SaturdayDeliveryIndicator: &indicator}
	}
	if details.Reference != "" {
		shipment.ReferenceNumber = &struct {
			Value string `json:"Value"`
		}{Value: details.Reference}
	}
	body.ShipmentRequest.Shipment = shipment
	body.ShipmentRequest.LabelSpecification = upsLabelSpec()

	var resp upsShipResponse
	err = u.client.doJSON(ctx, "ship", request{
		Method:  http.MethodPost,
		Path:    upsShipPath,
		Headers: u.headers(token),
	}, body, &resp)
	if err != nil {
		return nil, err
	}

	results := resp.ShipmentResponse.ShipmentResults
	if results.ShipmentIdentificationNumber == "" {
		return nil, fmt.Errorf("ups ship: %w: missing shipment identification number", ErrInvalidResponse)
	}

	total := results.ShipmentCharges.TotalCharges
	if u.cfg.Settings.NegotiatedRates && results.NegotiatedRateCharges != nil && results.NegotiatedRateCharges.TotalCharge.MonetaryValue != "" {
		total = results.NegotiatedRateCharges.TotalCharge
	}
	cost, err := decimal.NewFromString(total.MonetaryValue)
	if err != nil {
		u.logger.Warn("Recording UPS shipment with unparseable charge as zero",
			zap.String("shipment_id", results.ShipmentIdentificationNumber),
			zap.String("amount", total.MonetaryValue),
		)
		cost = decimal.Zero
	}

	out := &models.ShipmentResponse{
		ShipmentID:     results.ShipmentIdentificationNumber,
		TrackingNumber: results.ShipmentIdentificationNumber,
		ServiceCode:    serviceCode,
		ServiceName:    upsServiceName(serviceCode, ""),
		CarrierName:    models.CarrierUPS,
		Cost:           cost,
		Currency:       total.CurrencyCode,
	}
	if len(results.PackageResults) > 0 {
		pkg := results.PackageResults[0]
		if pkg.TrackingNumber != "" {
			out.TrackingNumber = pkg.TrackingNumber
		}
		if pkg.ShippingLabel != nil {
			label, err := decodeUPSLabel(*pkg.ShippingLabel)
			if err != nil {
				u.logger.Warn("Discarding undecodable UPS label", zap.String("shipment_id", out.ShipmentID), zap.Error(err))
			} else {
				out.Label = label
			}
		}
	}
	return out, nil
}

// PurchaseLabel recovers the label of an existing shipment. UPS identifies
// single-package shipments by their tracking number.
func (u *UPSCarrier) PurchaseLabel(ctx context.Context, shipmentID string) (*models.Label, error) {
	token, err := u.accessToken(ctx, ShipmentTokenLookahead)
	if err != nil {
		return nil, err
	}

	var body upsLabelRecoveryRequest
	body.LabelRecoveryRequest.LabelSpecification = upsLabelSpec()
	body.LabelRecoveryRequest.TrackingNumber = shipmentID

	var resp upsLabelRecoveryResponse
	err = u.client.doJSON(ctx, "label", request{
		Method:  http.MethodPost,
		Path:    upsLabelRecoveryPath,
		Headers: u.headers(token),
	}, body, &resp)
	if err != nil {
		return nil, err
	}

	results := resp.LabelRecoveryResponse.LabelResults
	if len(results) == 0 || results[0].LabelImage.GraphicImage == "" {
		return nil, ErrLabelNotAvailable
	}
	return decodeUPSLabel(results[0].LabelImage)
}

// TrackShipment fetches the tracking history of a package.
func (u *UPSCarrier) TrackShipment(ctx context.Context, trackingNumber string) (*models.TrackingResponse, error) {
	token, err := u.accessToken(ctx, ShipmentTokenLookahead)
	if err != nil {
		return nil, err
	}

	var resp upsTrackResponse
	err = u.client.doJSON(ctx, "track", request{
		Method:  http.MethodGet,
		Path:    upsTrackPath + url.PathEscape(trackingNumber) + "?locale=en_US&returnSignature=false",
		Headers: u.headers(token),
	}, nil, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.TrackResponse.Shipment) == 0 || len(resp.TrackResponse.Shipment[0].Package) == 0 {
		return nil, fmt.Errorf("ups track: %w: no package in response", ErrInvalidResponse)
	}
	pkg := resp.TrackResponse.Shipment[0].Package[0]

	out := &models.TrackingResponse{
		TrackingNumber: trackingNumber,
		CarrierName:    models.CarrierUPS,
		Status:         models.TrackingStatusUnknown,
		Events:         make([]models.TrackingEvent, 0, len(pkg.Activity)),
	}
	if pkg.CurrentStatus != nil {
		out.Status = upsTrackingStatus(pkg.CurrentStatus.Type)
		out.StatusDescription = strings.TrimSpace(pkg.CurrentStatus.Description)
	}
	for _, d := range pkg.DeliveryDate {
		if t, err := time.Parse("20060102", d.Date); err == nil {
			out.EstimatedDelivery = &t
			break
		}
	}

	for _, a := range pkg.Activity {
		ts, _ := time.Parse("20060102150405", a.Date+a.Time)
		addr := a.Location.Address
		out.Events = append(out.Events, models.TrackingEvent{
			Timestamp:   ts,
			Description: strings.TrimSpace(a.Status.Description),
			Location:    joinNonEmpty(", ", addr.City, addr.StateProvince, addr.CountryCode),
			Code:        a.Status.Code,
		})
	}
	if pkg.CurrentStatus == nil && len(pkg.Activity) > 0 {
		latest := pkg.Activity[0].Status
		out.Status = upsTrackingStatus(latest.Type)
		out.StatusDescription = strings.TrimSpace(latest.Description)
	}
	return out, nil
}

// ValidateCredentials reports whether a usable token can be obtained. Accounts
// without a refresh token fall back to the client_credentials grant.
func (u *UPSCarrier) ValidateCredentials(ctx context.Context) (bool, error) {
	_, err := u.accessToken(ctx, RateTokenLookahead)
	if errors.Is(err, ErrReauthorizationRequired) && u.tokens != nil &&
		u.cfg.Credentials.ClientID != "" && u.cfg.Credentials.ClientSecret != "" {
		_, err = u.tokens.Authorize(ctx, u.cfg.UserID)
	}
	if err != nil {
		if isAuthFailure(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (u *UPSCarrier) GetServices(ctx context.Context) ([]models.CarrierServiceOption, error) {
	out := make([]models.CarrierServiceOption, len(upsServices))
	copy(out, upsServices)
	return out, nil
}

func (u *UPSCarrier) party(a models.Address, shipper bool) upsParty {
	name := a.Name
	if a.Company != "" {
		name = a.Company
	}
	p := upsParty{
		Name:          name,
		AttentionName: a.Name,
		EMailAddress:  a.Email,
		Address: upsAddress{
			AddressLine:       nonEmpty(a.Street1, a.Street2),
			City:              a.City,
			StateProvinceCode: a.State,
			PostalCode:        a.PostalCode,
			CountryCode:       strings.ToUpper(a.Country),
		},
	}
	if a.Phone != "" {
		p.Phone = &upsPhone{Number: a.Phone}
	}
	if shipper {
		p.ShipperNumber = u.cfg.AccountNumber
	}
	return p
}

func upsPackageFor(details models.ShipmentDetails, rating bool) upsPackage {
	p := details.Package
	weightUnit, dimUnit := "LBS", "IN"
	if p.WeightUnit == models.WeightUnitKG {
		weightUnit = "KGS"
	}
	if p.DimensionUnit == models.DimensionUnitCM {
		dimUnit = "CM"
	}

	// customer supplied packaging
	packaging := &upsCode{Code: "02"}
	pkg := upsPackage{
		PackageWeight: upsMeasure{
			UnitOfMeasurement: upsCode{Code: weightUnit},
			Weight:            formatMeasure(p.Weight, 1),
		},
	}
	if rating {
		pkg.PackagingType = packaging
	} else {
		pkg.Packaging = packaging
	}
	if p.HasDimensions() {
		pkg.Dimensions = &upsMeasure{
			UnitOfMeasurement: upsCode{Code: dimUnit},
			Length:            formatMeasure(p.Length, 2),
			Width:             formatMeasure(p.Width, 2),
			Height:            formatMeasure(p.Height, 2),
		}
	}

	opts := details.Options
	if opts.SignatureRequired || opts.Insurance.IsPositive() {
		pkg.PackageServiceOptions = &upsPackageServiceOptions{}
		if opts.SignatureRequired {
			pkg.PackageServiceOptions.DeliveryConfirmation = &struct {
				DCISType string `json:"DCISType"`
			}{DCISType: "2"}
		}
		if opts.Insurance.IsPositive() {
			pkg.PackageServiceOptions.DeclaredValue = &upsMoney{
				CurrencyCode:  currencyFor(details.FromAddress.Country),
				MonetaryValue: opts.Insurance.StringFixed(2),
			}
		}
	}
	return pkg
}

func upsLabelSpec() upsLabelSpecification {
	return upsLabelSpecification{
		LabelImageFormat: upsCode{Code: upsLabelFormat},
		LabelStockSize: &struct {
			Height string `json:"Height"`
			Width  string `json:"Width"`
		}{Height: "6", Width: "4"},
	}
}

func decodeUPSLabel(img upsLabelImage) (*models.Label, error) {
	data, err := base64.StdEncoding.DecodeString(img.GraphicImage)
	if err != nil {
		return nil, fmt.Errorf("ups label: %w: %v", ErrInvalidResponse, err)
	}
	format := img.format()
	if format == "" {
		format = upsLabelFormat
	}
	return &models.Label{Data: data, Format: strings.ToUpper(format)}, nil
}

// upsTrackingStatus maps the UPS activity status type to a normalized status.
func upsTrackingStatus(statusType string) string {
	switch strings.ToUpper(statusType) {
	case "M", "MV":
		return models.TrackingStatusPreTransit
	case "P", "I":
		return models.TrackingStatusInTransit
	case "O":
		return models.TrackingStatusOutForDelivery
	case "D":
		return models.TrackingStatusDelivered
	case "X", "RS":
		return models.TrackingStatusException
	default:
		return models.TrackingStatusUnknown
	}
}

func parseDays(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func formatMeasure(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// currencyFor guesses the currency of declared values from the origin country.
func currencyFor(country string) string {
	switch strings.ToUpper(country) {
	case "CA":
		return "CAD"
	case "GB":
		return "GBP"
	case "MX":
		return "MXN"
	default:
		return "USD"
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinNonEmpty(sep string, values ...string) string {
	return strings.Join(nonEmpty(values...), sep)
}
