package models

// CarrierConfigRequest is the body of PUT /carriers/:carrier/config.
type CarrierConfigRequest struct {
	AccountNumber string             `json:"account_number"`
	Credentials   CarrierCredentials `json:"credentials"`
	Settings      CarrierSettings    `json:"settings"`
	IsActive      *bool              `json:"is_active"`
}

// CreateShipmentRequest is the body of POST /carriers/:carrier/shipments.
type CreateShipmentRequest struct {
	ServiceCode string          `json:"service_code" binding:"required"`
	Details     ShipmentDetails `json:"details" binding:"required"`
}

// BestRateResponse wraps FindBestRate so "no rate" serializes as null.
type BestRateResponse struct {
	Rate *RateResponse `json:"rate"`
}

// ShipmentListResponse is a page of shipment history.
type ShipmentListResponse struct {
	Shipments []Shipment `json:"shipments"`
	Total     int64      `json:"total"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}
