package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShipmentStatus constants.
const (
	ShipmentStatusCreated   = "created"
	ShipmentStatusLabeled   = "labeled"
	ShipmentStatusInTransit = TrackingStatusInTransit
	ShipmentStatusDelivered = TrackingStatusDelivered
	ShipmentStatusException = TrackingStatusException
)

// Shipment is the record kept for every shipment created through a carrier.
type Shipment struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         string          `gorm:"type:varchar(128);not null;index" json:"user_id"`
	CarrierName    string          `gorm:"type:varchar(64);not null" json:"carrier_name"`
	ServiceCode    string          `gorm:"type:varchar(64)" json:"service_code"`
	ServiceName    string          `gorm:"type:varchar(128)" json:"service_name"`
	ShipmentID     string          `gorm:"type:varchar(256)" json:"shipment_id"`
	TrackingNumber string          `gorm:"type:varchar(256);index" json:"tracking_number"`
	LabelURL       string          `gorm:"type:varchar(2048)" json:"label_url,omitempty"`
	LabelFormat    string          `gorm:"type:varchar(16)" json:"label_format,omitempty"`
	Cost           decimal.Decimal `gorm:"type:numeric(12,2)" json:"cost"`
	Currency       string          `gorm:"type:varchar(3)" json:"currency"`
	Status         string          `gorm:"type:varchar(32);not null;default:'created'" json:"status"`
	Reference      string          `gorm:"type:varchar(128)" json:"reference,omitempty"`
	// Details stored as a JSON string for simplicity
	DetailsJSON string         `gorm:"type:jsonb" json:"-"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
