package models

import "time"

// ShipmentCreatedEvent is published when a carrier shipment is created.
type ShipmentCreatedEvent struct {
	EventType      string    `json:"event_type"`
	ShipmentID     string    `json:"shipment_id"`
	UserID         string    `json:"user_id"`
	Carrier        string    `json:"carrier"`
	ServiceCode    string    `json:"service_code"`
	TrackingNumber string    `json:"tracking_number"`
	LabelURL       string    `json:"label_url,omitempty"`
	Cost           string    `json:"cost"`
	Currency       string    `json:"currency"`
	Timestamp      time.Time `json:"timestamp"`
}

// ShipmentUpdatedEvent is published when tracking status changes.
type ShipmentUpdatedEvent struct {
	EventType      string    `json:"event_type"`
	ShipmentID     string    `json:"shipment_id"`
	UserID         string    `json:"user_id"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Event type names.
const (
	EventShipmentCreated = "shipment_created"
	EventShipmentUpdated = "shipment_updated"
)

// LabelRequest is the queue message asking for a shipment to be created.
type LabelRequest struct {
	UserID      string          `json:"user_id"`
	Carrier     string          `json:"carrier"`
	ServiceCode string          `json:"service_code"`
	Details     ShipmentDetails `json:"details"`
}
