package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Supported carrier names. These are the keys used in carrier_configurations
// and in the CarrierService registry.
const (
	CarrierUPS         = "ups"
	CarrierCanadaPost  = "canada_post"
	CarrierShipStation = "shipstation"
)

// CarrierCredentials is the per-carrier credential bag. Which fields are
// populated depends on the carrier.
type CarrierCredentials struct {
	APIKey         string     `json:"api_key,omitempty"`
	APISecret      string     `json:"api_secret,omitempty"`
	ClientID       string     `json:"client_id,omitempty"`
	ClientSecret   string     `json:"client_secret,omitempty"`
	Username       string     `json:"username,omitempty"`
	Password       string     `json:"password,omitempty"`
	AccessToken    string     `json:"access_token,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// TokenValidFor reports whether the cached access token is still usable
// lookahead from now.
func (c CarrierCredentials) TokenValidFor(now time.Time, lookahead time.Duration) bool {
	if c.AccessToken == "" || c.TokenExpiresAt == nil {
		return false
	}
	return c.TokenExpiresAt.After(now.Add(lookahead))
}

// Redacted returns a copy safe to return over the API.
func (c CarrierCredentials) Redacted() CarrierCredentials {
	return CarrierCredentials{
		APIKey:         maskSecret(c.APIKey),
		APISecret:      maskSecret(c.APISecret),
		ClientID:       maskSecret(c.ClientID),
		ClientSecret:   maskSecret(c.ClientSecret),
		Username:       c.Username,
		Password:       maskSecret(c.Password),
		AccessToken:    maskSecret(c.AccessToken),
		RefreshToken:   maskSecret(c.RefreshToken),
		TokenExpiresAt: c.TokenExpiresAt,
	}
}

// MergeStored fills fields the caller left empty, or echoed back in their
// redacted form, from the stored credentials. Tokens are carried over as a
// set and only when the caller supplied neither of them.
func (c CarrierCredentials) MergeStored(stored CarrierCredentials) CarrierCredentials {
	keep := func(in, old string) string {
		if in == "" || (old != "" && in == maskSecret(old)) {
			return old
		}
		return in
	}
	out := CarrierCredentials{
		APIKey:       keep(c.APIKey, stored.APIKey),
		APISecret:    keep(c.APISecret, stored.APISecret),
		ClientID:     keep(c.ClientID, stored.ClientID),
		ClientSecret: keep(c.ClientSecret, stored.ClientSecret),
		Username:     keep(c.Username, stored.Username),
		Password:     keep(c.Password, stored.Password),
	}

	unchanged := func(in, old string) bool { return in == "" || in == maskSecret(old) }
	if unchanged(c.AccessToken, stored.AccessToken) && unchanged(c.RefreshToken, stored.RefreshToken) {
		out.AccessToken = stored.AccessToken
		out.RefreshToken = stored.RefreshToken
		out.TokenExpiresAt = stored.TokenExpiresAt
		return out
	}
	out.AccessToken = c.AccessToken
	out.RefreshToken = keep(c.RefreshToken, stored.RefreshToken)
	out.TokenExpiresAt = c.TokenExpiresAt
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func (c CarrierCredentials) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CarrierCredentials) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// CarrierSettings holds non-secret per-carrier options.
type CarrierSettings struct {
	MarkupPercentage decimal.Decimal `json:"markup_percentage"`
	NegotiatedRates  bool            `json:"negotiated_rates,omitempty"`
	Sandbox          bool            `json:"sandbox,omitempty"`
	CustomerNumber   string          `json:"customer_number,omitempty"`
	OriginPostalCode string          `json:"origin_postal_code,omitempty"`
}

func (s CarrierSettings) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *CarrierSettings) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func scanJSON(value interface{}, out interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, out)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), out)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}

// CarrierConfiguration is a carrier_configurations row, keyed by
// (user_id, carrier_name).
type CarrierConfiguration struct {
	ID            uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        string             `gorm:"type:varchar(128);not null;uniqueIndex:idx_carrier_config_user_carrier" json:"user_id"`
	CarrierName   string             `gorm:"type:varchar(64);not null;uniqueIndex:idx_carrier_config_user_carrier" json:"carrier_name"`
	AccountNumber string             `gorm:"type:varchar(128)" json:"account_number,omitempty"`
	Credentials   CarrierCredentials `gorm:"type:jsonb" json:"credentials"`
	Settings      CarrierSettings    `gorm:"type:jsonb" json:"settings"`
	IsActive      bool               `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt     `gorm:"index" json:"-"`
}

// TableName pins the table name.
func (CarrierConfiguration) TableName() string { return "carrier_configurations" }

// Address represents a physical mailing address used for shipping.
type Address struct {
	Name       string `json:"name" validate:"required"`
	Company    string `json:"company,omitempty"`
	Street1    string `json:"street1" validate:"required"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"` // ISO 3166-1 alpha-2
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Weight and dimension units accepted in Package.
const (
	WeightUnitLB    = "lb"
	WeightUnitKG    = "kg"
	DimensionUnitIN = "in"
	DimensionUnitCM = "cm"
)

const (
	lbPerKg = 2.20462262
	cmPerIn = 2.54
)

// Package describes the single parcel being shipped.
type Package struct {
	Weight        float64 `json:"weight" validate:"gt=0"`
	Length        float64 `json:"length" validate:"gte=0"`
	Width         float64 `json:"width" validate:"gte=0"`
	Height        float64 `json:"height" validate:"gte=0"`
	WeightUnit    string  `json:"weight_unit" validate:"omitempty,oneof=lb kg"`
	DimensionUnit string  `json:"dimension_unit" validate:"omitempty,oneof=in cm"`
}

// WeightKg returns the weight in kilograms. An empty unit means pounds.
func (p Package) WeightKg() float64 {
	if p.WeightUnit == WeightUnitKG {
		return p.Weight
	}
	return p.Weight / lbPerKg
}

// WeightLb returns the weight in pounds.
func (p Package) WeightLb() float64 {
	if p.WeightUnit == WeightUnitKG {
		return p.Weight * lbPerKg
	}
	return p.Weight
}

// DimensionsCm returns length, width and height in centimetres. An empty unit
// means inches.
func (p Package) DimensionsCm() (float64, float64, float64) {
	if p.DimensionUnit == DimensionUnitCM {
		return p.Length, p.Width, p.Height
	}
	return p.Length * cmPerIn, p.Width * cmPerIn, p.Height * cmPerIn
}

// DimensionsIn returns length, width and height in inches.
func (p Package) DimensionsIn() (float64, float64, float64) {
	if p.DimensionUnit == DimensionUnitCM {
		return p.Length / cmPerIn, p.Width / cmPerIn, p.Height / cmPerIn
	}
	return p.Length, p.Width, p.Height
}

// HasDimensions reports whether all three dimensions were supplied.
func (p Package) HasDimensions() bool {
	return p.Length > 0 && p.Width > 0 && p.Height > 0
}

// ShipmentOptions are the optional services requested for a shipment.
type ShipmentOptions struct {
	SignatureRequired bool            `json:"signature_required,omitempty"`
	Insurance         decimal.Decimal `json:"insurance,omitempty"`
	SaturdayDelivery  bool            `json:"saturday_delivery,omitempty"`
}

// ShipmentDetails is the immutable input to rate and shipment calls.
type ShipmentDetails struct {
	FromAddress Address         `json:"from_address" validate:"required"`
	ToAddress   Address         `json:"to_address" validate:"required"`
	Package     Package         `json:"package" validate:"required"`
	Options     ShipmentOptions `json:"options"`
	Reference   string          `json:"reference,omitempty"`
}

// RateResponse is a carrier-normalized quote.
type RateResponse struct {
	ServiceCode       string           `json:"service_code"`
	ServiceName       string           `json:"service_name"`
	CarrierName       string           `json:"carrier_name"`
	Rate              decimal.Decimal  `json:"rate"`
	Currency          string           `json:"currency"`
	DeliveryDays      *int             `json:"delivery_days,omitempty"`
	EstimatedDelivery string           `json:"estimated_delivery,omitempty"`
	Markup            *decimal.Decimal `json:"markup,omitempty"`
	TotalRate         *decimal.Decimal `json:"total_rate,omitempty"`
	Negotiated        bool             `json:"negotiated,omitempty"`
}

// EffectiveRate is the marked-up total when present, otherwise the base rate.
func (r RateResponse) EffectiveRate() decimal.Decimal {
	if r.TotalRate != nil {
		return *r.TotalRate
	}
	return r.Rate
}

// Label is a purchased shipping label: either a URL or the embedded file.
type Label struct {
	URL    string `json:"url,omitempty"`
	Data   []byte `json:"data,omitempty"`
	Format string `json:"format,omitempty"` // PDF, GIF, ZPL
}

// ShipmentResponse is the result of creating a shipment with a carrier.
type ShipmentResponse struct {
	ShipmentID     string          `json:"shipment_id"`
	TrackingNumber string          `json:"tracking_number"`
	ServiceCode    string          `json:"service_code"`
	ServiceName    string          `json:"service_name,omitempty"`
	CarrierName    string          `json:"carrier_name"`
	Cost           decimal.Decimal `json:"cost"`
	Currency       string          `json:"currency"`
	Label          *Label          `json:"label,omitempty"`
}

// Normalized tracking statuses.
const (
	TrackingStatusPreTransit     = "pre_transit"
	TrackingStatusInTransit      = "in_transit"
	TrackingStatusOutForDelivery = "out_for_delivery"
	TrackingStatusDelivered      = "delivered"
	TrackingStatusException      = "exception"
	TrackingStatusUnknown        = "unknown"
)

// TrackingEvent is a single scan in a shipment's history.
type TrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Code        string    `json:"code,omitempty"`
}

// TrackingResponse is the carrier-normalized tracking state.
type TrackingResponse struct {
	TrackingNumber    string          `json:"tracking_number"`
	CarrierName       string          `json:"carrier_name"`
	Status            string          `json:"status"`
	StatusDescription string          `json:"status_description,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	Events            []TrackingEvent `json:"events"`
}

// CarrierServiceOption is one service level offered by a carrier.
type CarrierServiceOption struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Domestic      bool   `json:"domestic"`
	International bool   `json:"international"`
}
