package carriers

import "encoding/xml"

const (
	cpRateMediaType       = "application/vnd.cpc.ship.rate-v4+xml"
	cpNCShipmentMediaType = "application/vnd.cpc.ncshipment-v4+xml"
	cpTrackMediaType      = "application/vnd.cpc.track-v2+xml"
)

type cpOption struct {
	Code   string `xml:"option-code"`
	Amount string `xml:"option-amount,omitempty"`
}

type cpOptions struct {
	Options []cpOption `xml:"option"`
}

type cpDimensions struct {
	Length string `xml:"length"`
	Width  string `xml:"width"`
	Height string `xml:"height"`
}

type cpParcel struct {
	Weight     string        `xml:"weight"`
	Dimensions *cpDimensions `xml:"dimensions,omitempty"`
}

// Rating

type cpMailingScenario struct {
	XMLName          xml.Name      `xml:"http://www.canadapost.ca/ws/ship/rate-v4 mailing-scenario"`
	CustomerNumber   string        `xml:"customer-number,omitempty"`
	QuoteType        string        `xml:"quote-type,omitempty"`
	Options          *cpOptions    `xml:"options,omitempty"`
	Parcel           cpParcel      `xml:"parcel-characteristics"`
	OriginPostalCode string        `xml:"origin-postal-code"`
	Destination      cpDestination `xml:"destination"`
}

type cpDestination struct {
	Domestic      *cpDomestic      `xml:"domestic,omitempty"`
	UnitedStates  *cpUnitedStates  `xml:"united-states,omitempty"`
	International *cpInternational `xml:"international,omitempty"`
}

type cpDomestic struct {
	PostalCode string `xml:"postal-code"`
}

type cpUnitedStates struct {
	ZipCode string `xml:"zip-code"`
}

type cpInternational struct {
	CountryCode string `xml:"country-code"`
}

type cpPriceQuotes struct {
	XMLName xml.Name `xml:"price-quotes"`
	Quotes  []struct {
		ServiceCode  string `xml:"service-code"`
		ServiceName  string `xml:"service-name"`
		PriceDetails struct {
			Base string `xml:"base"`
			Due  string `xml:"due"`
		} `xml:"price-details"`
		ServiceStandard struct {
			ExpectedTransitTime  string `xml:"expected-transit-time"`
			ExpectedDeliveryDate string `xml:"expected-delivery-date"`
		} `xml:"service-standard"`
	} `xml:"price-quote"`
}

// Non-contract shipments

type cpAddressDetails struct {
	AddressLine1  string `xml:"address-line-1"`
	AddressLine2  string `xml:"address-line-2,omitempty"`
	City          string `xml:"city"`
	ProvState     string `xml:"prov-state,omitempty"`
	CountryCode   string `xml:"country-code,omitempty"`
	PostalZipCode string `xml:"postal-zip-code,omitempty"`
}

type cpSender struct {
	Name         string           `xml:"name,omitempty"`
	Company      string           `xml:"company"`
	ContactPhone string           `xml:"contact-phone"`
	Address      cpAddressDetails `xml:"address-details"`
}

type cpRecipient struct {
	Name        string           `xml:"name"`
	Company     string           `xml:"company,omitempty"`
	ClientVoice string           `xml:"client-voice-number,omitempty"`
	Address     cpAddressDetails `xml:"address-details"`
}

type cpDeliverySpec struct {
	ServiceCode string      `xml:"service-code"`
	Sender      cpSender    `xml:"sender"`
	Destination cpRecipient `xml:"destination"`
	Options     *cpOptions  `xml:"options,omitempty"`
	Parcel      cpParcel    `xml:"parcel-characteristics"`
	Preferences struct {
		ShowPackingInstructions bool `xml:"show-packing-instructions"`
	} `xml:"preferences"`
	References *cpReferences `xml:"references,omitempty"`
}

type cpReferences struct {
	CustomerRef1 string `xml:"customer-ref-1"`
}

type cpNonContractShipment struct {
	XMLName                xml.Name       `xml:"http://www.canadapost.ca/ws/ncshipment-v4 non-contract-shipment"`
	RequestedShippingPoint string         `xml:"requested-shipping-point,omitempty"`
	DeliverySpec           cpDeliverySpec `xml:"delivery-spec"`
}

type cpLink struct {
	Rel       string `xml:"rel,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type cpShipmentInfo struct {
	XMLName     xml.Name `xml:"non-contract-shipment-info"`
	ShipmentID  string   `xml:"shipment-id"`
	TrackingPIN string   `xml:"tracking-pin"`
	Links       []cpLink `xml:"links>link"`
}

func (s cpShipmentInfo) link(rel string) (cpLink, bool) {
	for _, l := range s.Links {
		if l.Rel == rel {
			return l, true
		}
	}
	return cpLink{}, false
}

type cpShipmentReceipt struct {
	XMLName          xml.Name `xml:"non-contract-shipment-receipt"`
	ServiceCode      string   `xml:"service-code"`
	CCReceiptDetails struct {
		ChargeAmount string `xml:"charge-amount"`
		Currency     string `xml:"currency"`
	} `xml:"cc-receipt-details"`
}

// Tracking

type cpTrackingSummary struct {
	XMLName    xml.Name `xml:"tracking-summary"`
	PinSummary []struct {
		PIN                  string `xml:"pin"`
		ExpectedDeliveryDate string `xml:"expected-delivery-date"`
		ActualDeliveryDate   string `xml:"actual-delivery-date"`
		EventDateTime        string `xml:"event-date-time"`
		EventDescription     string `xml:"event-description"`
		EventLocation        string `xml:"event-location"`
		EventType            string `xml:"event-type"`
	} `xml:"pin-summary"`
}

// Services

type cpServices struct {
	XMLName  xml.Name `xml:"services"`
	Services []struct {
		ServiceCode string `xml:"service-code"`
		ServiceName string `xml:"service-name"`
	} `xml:"service"`
}
