package carriers

import (
	"bytes"
	"encoding/json"
)

// oneOrMany decodes a UPS field that is an object when there is a single
// element and an array otherwise.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*o = nil
		return nil
	}
	if b[0] == '[' {
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*o = oneOrMany[T]{one}
	return nil
}

type upsCode struct {
	Code        string `json:"Code"`
	Description string `json:"Description,omitempty"`
}

type upsAddress struct {
	AddressLine       []string `json:"AddressLine"`
	City              string   `json:"City"`
	StateProvinceCode string   `json:"StateProvinceCode,omitempty"`
	PostalCode        string   `json:"PostalCode"`
	CountryCode       string   `json:"CountryCode"`
}

type upsPhone struct {
	Number string `json:"Number"`
}

type upsParty struct {
	Name          string     `json:"Name"`
	AttentionName string     `json:"AttentionName,omitempty"`
	ShipperNumber string     `json:"ShipperNumber,omitempty"`
	Phone         *upsPhone  `json:"Phone,omitempty"`
	EMailAddress  string     `json:"EMailAddress,omitempty"`
	Address       upsAddress `json:"Address"`
}

type upsMeasure struct {
	UnitOfMeasurement upsCode `json:"UnitOfMeasurement"`
	Length            string  `json:"Length,omitempty"`
	Width             string  `json:"Width,omitempty"`
	Height            string  `json:"Height,omitempty"`
	Weight            string  `json:"Weight,omitempty"`
}

type upsMoney struct {
	CurrencyCode  string `json:"CurrencyCode"`
	MonetaryValue string `json:"MonetaryValue"`
}

type upsPackageServiceOptions struct {
	DeliveryConfirmation *struct {
		DCISType string `json:"DCISType"`
	} `json:"DeliveryConfirmation,omitempty"`
	DeclaredValue *upsMoney `json:"DeclaredValue,omitempty"`
}

type upsPackage struct {
	PackagingType         *upsCode                  `json:"PackagingType,omitempty"`
	Packaging             *upsCode                  `json:"Packaging,omitempty"`
	Dimensions            *upsMeasure               `json:"Dimensions,omitempty"`
	PackageWeight         upsMeasure                `json:"PackageWeight"`
	PackageServiceOptions *upsPackageServiceOptions `json:"PackageServiceOptions,omitempty"`
}

type upsRatingOptions struct {
	NegotiatedRatesIndicator *string `json:"NegotiatedRatesIndicator,omitempty"`
}

type upsShipmentServiceOptions struct {
	SaturdayDeliveryIndicator *string `json:"SaturdayDeliveryIndicator,omitempty"`
}

type upsTransactionReference struct {
	CustomerContext string `json:"CustomerContext,omitempty"`
}

type upsRequestHeader struct {
	RequestOption        string                   `json:"RequestOption"`
	TransactionReference *upsTransactionReference `json:"TransactionReference,omitempty"`
}

// Rating

type upsRateRequest struct {
	RateRequest struct {
		Request  upsRequestHeader `json:"Request"`
		Shipment upsRateShipment  `json:"Shipment"`
	} `json:"RateRequest"`
}

type upsRateShipment struct {
	Shipper                 upsParty                   `json:"Shipper"`
	ShipTo                  upsParty                   `json:"ShipTo"`
	ShipFrom                upsParty                   `json:"ShipFrom"`
	Package                 upsPackage                 `json:"Package"`
	ShipmentRatingOptions   *upsRatingOptions          `json:"ShipmentRatingOptions,omitempty"`
	ShipmentServiceOptions  *upsShipmentServiceOptions `json:"ShipmentServiceOptions,omitempty"`
	DeliveryTimeInformation *struct {
		PackageBillType string `json:"PackageBillType"`
	} `json:"DeliveryTimeInformation,omitempty"`
}

type upsRateResponse struct {
	RateResponse struct {
		RatedShipment oneOrMany[upsRatedShipment] `json:"RatedShipment"`
	} `json:"RateResponse"`
}

type upsRatedShipment struct {
	Service               upsCode  `json:"Service"`
	TotalCharges          upsMoney `json:"TotalCharges"`
	NegotiatedRateCharges *struct {
		TotalCharge upsMoney `json:"TotalCharge"`
	} `json:"NegotiatedRateCharges,omitempty"`
	GuaranteedDelivery *struct {
		BusinessDaysInTransit string `json:"BusinessDaysInTransit"`
	} `json:"GuaranteedDelivery,omitempty"`
	TimeInTransit *struct {
		ServiceSummary struct {
			EstimatedArrival struct {
				BusinessDaysInTransit string `json:"BusinessDaysInTransit"`
				Arrival               struct {
					Date string `json:"Date"`
				} `json:"Arrival"`
			} `json:"EstimatedArrival"`
		} `json:"ServiceSummary"`
	} `json:"TimeInTransit,omitempty"`
}

// Shipping

type upsShipRequest struct {
	ShipmentRequest struct {
		Request            upsRequestHeader      `json:"Request"`
		Shipment           upsShipment           `json:"Shipment"`
		LabelSpecification upsLabelSpecification `json:"LabelSpecification"`
	} `json:"ShipmentRequest"`
}

type upsShipment struct {
	Description            string                     `json:"Description,omitempty"`
	Shipper                upsParty                   `json:"Shipper"`
	ShipTo                 upsParty                   `json:"ShipTo"`
	ShipFrom               upsParty                   `json:"ShipFrom"`
	PaymentInformation     upsPaymentInformation      `json:"PaymentInformation"`
	Service                upsCode                    `json:"Service"`
	Package                []upsPackage               `json:"Package"`
	ShipmentServiceOptions *upsShipmentServiceOptions `json:"ShipmentServiceOptions,omitempty"`
	ShipmentRatingOptions  *upsRatingOptions          `json:"ShipmentRatingOptions,omitempty"`
	ReferenceNumber        *struct {
		Value string `json:"Value"`
	} `json:"ReferenceNumber,omitempty"`
}

type upsPaymentInformation struct {
	ShipmentCharge []upsShipmentCharge `json:"ShipmentCharge"`
}

type upsShipmentCharge struct {
	Type        string `json:"Type"`
	BillShipper struct {
		AccountNumber string `json:"AccountNumber"`
	} `json:"BillShipper"`
}

type upsLabelSpecification struct {
	LabelImageFormat upsCode `json:"LabelImageFormat"`
	LabelStockSize   *struct {
		Height string `json:"Height"`
		Width  string `json:"Width"`
	} `json:"LabelStockSize,omitempty"`
}

type upsShipResponse struct {
	ShipmentResponse struct {
		ShipmentResults struct {
			ShipmentIdentificationNumber string `json:"ShipmentIdentificationNumber"`
			ShipmentCharges              struct {
				TotalCharges upsMoney `json:"TotalCharges"`
			} `json:"ShipmentCharges"`
			NegotiatedRateCharges *struct {
				TotalCharge upsMoney `json:"TotalCharge"`
			} `json:"NegotiatedRateCharges,omitempty"`
			PackageResults oneOrMany[upsPackageResult] `json:"PackageResults"`
		} `json:"ShipmentResults"`
	} `json:"ShipmentResponse"`
}

type upsPackageResult struct {
	TrackingNumber string         `json:"TrackingNumber"`
	ShippingLabel  *upsLabelImage `json:"ShippingLabel,omitempty"`
}

type upsLabelImage struct {
	ImageFormat      upsCode `json:"ImageFormat"`
	LabelImageFormat upsCode `json:"LabelImageFormat"`
	GraphicImage     string  `json:"GraphicImage"`
}

// format returns whichever image format field UPS populated.
func (l upsLabelImage) format() string {
	if l.ImageFormat.Code != "" {
		return l.ImageFormat.Code
	}
	return l.LabelImageFormat.Code
}

// Label recovery

type upsLabelRecoveryRequest struct {
	LabelRecoveryRequest struct {
		LabelSpecification upsLabelSpecification `json:"LabelSpecification"`
		TrackingNumber     string                `json:"TrackingNumber"`
	} `json:"LabelRecoveryRequest"`
}

type upsLabelRecoveryResponse struct {
	LabelRecoveryResponse struct {
		LabelResults oneOrMany[struct {
			TrackingNumber string        `json:"TrackingNumber"`
			LabelImage     upsLabelImage `json:"LabelImage"`
		}] `json:"LabelResults"`
	} `json:"LabelRecoveryResponse"`
}

// Tracking

type upsTrackResponse struct {
	TrackResponse struct {
		Shipment []struct {
			Package []upsTrackPackage `json:"package"`
		} `json:"shipment"`
	} `json:"trackResponse"`
}

type upsTrackPackage struct {
	TrackingNumber string `json:"trackingNumber"`
	DeliveryDate   []struct {
		Type string `json:"type"`
		Date string `json:"date"`
	} `json:"deliveryDate"`
	CurrentStatus *upsTrackStatus `json:"currentStatus,omitempty"`
	Activity      []struct {
		Location struct {
			Address struct {
				City          string `json:"city"`
				StateProvince string `json:"stateProvince"`
				CountryCode   string `json:"countryCode"`
			} `json:"address"`
		} `json:"location"`
		Status upsTrackStatus `json:"status"`
		Date   string         `json:"date"`
		Time   string         `json:"time"`
	} `json:"activity"`
}

type upsTrackStatus struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Code        string `json:"code"`
}
