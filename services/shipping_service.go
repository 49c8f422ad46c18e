package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"carrier-service/carriers"
	"carrier-service/events"
	"carrier-service/models"
	awspkg "carrier-service/pkg/aws"
	"carrier-service/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

// CodeReauthorizationRequired tells clients to send the user through the
// carrier's OAuth consent again.
const CodeReauthorizationRequired = "carrier_reauthorization_required"

// RateCache stores aggregated quotes per user and shipment.
type RateCache interface {
	Get(ctx context.Context, userID string, details models.ShipmentDetails) ([]models.RateResponse, bool, error)
	Set(ctx context.Context, userID string, details models.ShipmentDetails, rates []models.RateResponse) error
	InvalidateUser(ctx context.Context, userID string) error
}

// LabelStore persists label files and returns a URL for them.
type LabelStore interface {
	Store(ctx context.Context, userID, carrier, trackingNumber string, label *models.Label) (string, error)
}

// CarrierFactory builds the adapter for a stored configuration.
type CarrierFactory func(cfg *models.CarrierConfiguration) (carriers.Carrier, error)

// ShippingService defines the business logic interface.
type ShippingService interface {
	ListCarriers(ctx context.Context, userID string) ([]models.CarrierConfiguration, *ServiceError)
	UpsertCarrier(ctx context.Context, userID, carrierName string, req *models.CarrierConfigRequest) (*models.CarrierConfiguration, *ServiceError)
	DeactivateCarrier(ctx context.Context, userID, carrierName string) *ServiceError
	ValidateCredentials(ctx context.Context, userID, carrierName string) (bool, *ServiceError)
	GetServices(ctx context.Context, userID, carrierName string) ([]models.CarrierServiceOption, *ServiceError)

	GetAllRates(ctx context.Context, userID string, details models.ShipmentDetails) ([]models.RateResponse, *ServiceError)
	FindBestRate(ctx context.Context, userID string, details models.ShipmentDetails) (*models.RateResponse, *ServiceError)
	GetRates(ctx context.Context, userID, carrierName string, details models.ShipmentDetails) ([]models.RateResponse, *ServiceError)

	CreateShipment(ctx context.Context, userID, carrierName string, req *models.CreateShipmentRequest) (*models.Shipment, *ServiceError)
	PurchaseLabel(ctx context.Context, userID, carrierName, shipmentID string) (*models.Label, *ServiceError)
	TrackShipment(ctx context.Context, userID, carrierName, trackingNumber string) (*models.TrackingResponse, *ServiceError)
	ListShipments(ctx context.Context, userID string, page, limit int) ([]models.Shipment, int64, *ServiceError)
}

// ShippingDeps wires a ShippingService. Cache, Labels, Publisher and Metrics
// are optional.
type ShippingDeps struct {
	Configs        repository.CarrierConfigRepository
	Shipments      repository.ShipmentRepository
	NewCarrier     CarrierFactory
	Cache          RateCache
	Labels         LabelStore
	Publisher      events.Publisher
	Metrics        *awspkg.MetricsClient
	CarrierTimeout time.Duration
	Logger         *zap.Logger
}

type shippingServiceImpl struct {
	configs    repository.CarrierConfigRepository
	shipments  repository.ShipmentRepository
	newCarrier CarrierFactory
	cache      RateCache
	labels     LabelStore
	publisher  events.Publisher
	metrics    *awspkg.MetricsClient
	timeout    time.Duration
	logger     *zap.Logger
}

// NewShippingService creates a new ShippingService.
func NewShippingService(deps ShippingDeps) ShippingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &shippingServiceImpl{
		configs:    deps.Configs,
		shipments:  deps.Shipments,
		newCarrier: deps.NewCarrier,
		cache:      deps.Cache,
		labels:     deps.Labels,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		timeout:    deps.CarrierTimeout,
		logger:     logger,
	}
}

// ---- carrier configurations ----

func (s *shippingServiceImpl) ListCarriers(ctx context.Context, userID string) ([]models.CarrierConfiguration, *ServiceError) {
	cfgs, err := s.configs.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list carrier configurations", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load carrier configurations"}
	}
	for i := range cfgs {
		cfgs[i].Credentials = cfgs[i].Credentials.Redacted()
	}
	if cfgs == nil {
		cfgs = []models.CarrierConfiguration{}
	}
	return cfgs, nil
}

func (s *shippingServiceImpl) UpsertCarrier(ctx context.Context, userID, carrierName string, req *models.CarrierConfigRequest) (*models.CarrierConfiguration, *ServiceError) {
	if !carriers.IsSupported(carrierName) {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: fmt.Sprintf("Unsupported carrier %q", carrierName)}
	}

	cfg := &models.CarrierConfiguration{
		UserID:        userID,
		CarrierName:   carrierName,
		AccountNumber: req.AccountNumber,
		Credentials:   req.Credentials,
		Settings:      req.Settings,
		IsActive:      true,
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}

	// Stored secrets and OAuth tokens survive a settings-only update and
	// credentials echoed back from a redacted listing.
	if existing, err := s.configs.Get(ctx, userID, carrierName); err == nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.Credentials = req.Credentials.MergeStored(existing.Credentials)
	} else if !errors.Is(err, carriers.ErrConfigurationNotFound) {
		s.logger.Error("Failed to load carrier configuration", zap.String("carrier", carrierName), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load carrier configuration"}
	}

	if _, err := s.newCarrier(cfg); err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid carrier configuration: " + err.Error()}
	}

	if err := s.configs.Upsert(ctx, cfg); err != nil {
		s.logger.Error("Failed to save carrier configuration", zap.String("carrier", carrierName), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to save carrier configuration"}
	}
	s.invalidateRates(ctx, userID)

	s.logger.Info("Carrier configuration saved",
		zap.String("user_id", userID),
		zap.String("carrier", carrierName),
		zap.Bool("active", cfg.IsActive),
	)

	out := *cfg
	out.Credentials = cfg.Credentials.Redacted()
	return &out, nil
}

func (s *shippingServiceImpl) DeactivateCarrier(ctx context.Context, userID, carrierName string) *ServiceError {
	if err := s.configs.Deactivate(ctx, userID, carrierName); err != nil {
		if errors.Is(err, carriers.ErrConfigurationNotFound) {
			return &ServiceError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("Carrier %q is not configured", carrierName)}
		}
		s.logger.Error("Failed to deactivate carrier", zap.String("carrier", carrierName), zap.Error(err))
		return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to deactivate carrier"}
	}
	s.invalidateRates(ctx, userID)
	return nil
}

func (s *shippingServiceImpl) ValidateCredentials(ctx context.Context, userID, carrierName string) (bool, *ServiceError) {
	c, svcErr := s.carrierFor(ctx, userID, carrierName)
	if svcErr != nil {
		return false, svcErr
	}
	ok, err := c.ValidateCredentials(ctx)
	if err != nil {
		return false, s.carrierFailure(carrierName, "validate credentials", err)
	}
	return ok, nil
}

func (s *shippingServiceImpl) GetServices(ctx context.Context, userID, carrierName string) ([]models.CarrierServiceOption, *ServiceError) {
	c, svcErr := s.carrierFor(ctx, userID, carrierName)
	if svcErr != nil {
		return nil, svcErr
	}
	list, err := c.GetServices(ctx)
	if err != nil {
		return nil, s.carrierFailure(carrierName, "list services", err)
	}
	return list, nil
}

// ---- rates ----

// GetAllRates shops every active carrier of the user. Carrier failures are
// absorbed by the fan-out; an empty list is a valid answer.
func (s *shippingServiceImpl) GetAllRates(ctx context.Context, userID string, details models.ShipmentDetails) ([]models.RateResponse, *ServiceError) {
	if err := details.Validate(); err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid shipment details: " + err.Error()}
	}

	if s.cache != nil {
		rates, hit, err := s.cache.Get(ctx, userID, details)
		if err != nil {
			s.logger.Warn("Rate cache lookup failed", zap.Error(err))
		} else if hit {
			return rates, nil
		}
	}

	registry, svcErr := s.registryFor(ctx, userID)
	if svcErr != nil {
		return nil, svcErr
	}

	_ = s.metrics.RecordCount(ctx, awspkg.MetricRateShopRequests, map[string]string{"Carriers": fmt.Sprint(len(registry.CarrierNames()))})

	rates := registry.GetAllRates(ctx, details)
	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, details, rates); err != nil {
			s.logger.Warn("Rate cache store failed", zap.Error(err))
		}
	}
	return rates, nil
}

func (s *shippingServiceImpl) FindBestRate(ctx context.Context, userID string, details models.ShipmentDetails) (*models.RateResponse, *ServiceError) {
	rates, svcErr := s.GetAllRates(ctx, userID, details)
	if svcErr != nil {
		return nil, svcErr
	}
	if len(rates) == 0 {
		return nil, nil
	}
	best := rates[0]
	return &best, nil
}

func (s *shippingServiceImpl) GetRates(ctx context.Context, userID, carrierName string, details models.ShipmentDetails) ([]models.RateResponse, *ServiceError) {
	if err := details.Validate(); err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid shipment details: " + err.Error()}
	}
	c, svcErr := s.carrierFor(ctx, userID, carrierName)
	if svcErr != nil {
		return nil, svcErr
	}
	rates, err := c.GetRates(ctx, details)
	if err != nil {
		return nil, s.carrierFailure(carrierName, "get rates", err)
	}
	SortRates(rates)
	return rates, nil
}

// ---- shipments ----

// CreateShipment books the shipment, stores its label, records it and
// publishes shipment_created.
func (s *shippingServiceImpl) CreateShipment(ctx context.Context, userID, carrierName string, req *models.CreateShipmentRequest) (*models.Shipment, *ServiceError) {
	if err := req.Details.Validate(); err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid shipment details: " + err.Error()}
	}
	c, svcErr := s.carrierFor(ctx, userID, carrierName)
	if svcErr != nil {
		return nil, svcErr
	}

	resp, err := c.CreateShipment(ctx, req.Details, req.ServiceCode)
	if err != nil {
		return nil, s.carrierFailure(carrierName, "create shipment", err)
	}

	shipment := &models.Shipment{
		UserID:         userID,
		CarrierName:    carrierName,
		ServiceCode:    firstNonEmpty(resp.ServiceCode, req.ServiceCode),
		ServiceName:    resp.ServiceName,
		ShipmentID:     resp.ShipmentID,
		TrackingNumber: resp.TrackingNumber,
		Cost:           resp.Cost,
		Currency:       resp.Currency,
		Status:         models.ShipmentStatusCreated,
		Reference:      req.Details.Reference,
	}
	if resp.Label != nil {
		shipment.LabelFormat = resp.Label.Format
		shipment.LabelURL = s.storeLabel(ctx, userID, carrierName, firstNonEmpty(resp.TrackingNumber, resp.ShipmentID), resp.Label)
		if shipment.LabelURL != "" {
			shipment.Status = models.ShipmentStatusLabeled
		}
	}
	if b, err := json.Marshal(req.Details); err == nil {
		shipment.DetailsJSON = string(b)
	}

	if err := s.shipments.Create(ctx, shipment); err != nil {
		// The carrier has already booked the shipment, so the identifiers are
		// logged for manual reconciliation.
		s.logger.Error("Failed to persist shipment",
			zap.String("carrier", carrierName),
			zap.String("shipment_id", resp.ShipmentID),
			zap.String("tracking_number", resp.TrackingNumber),
			zap.Error(err),
		)
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to save shipment record"}
	}

	s.logger.Info("Shipment created",
		zap.String("carrier", carrierName),
		zap.String("service_code", shipment.ServiceCode),
		zap.String("tracking_number", shipment.TrackingNumber),
	)
	_ = s.metrics.RecordCount(ctx, awspkg.MetricShipmentsCreated, map[string]string{"Carrier": carrierName})

	s.publishEvent(ctx, events.Event{
		Type: models.EventShipmentCreated,
		Key:  shipment.ID.String(),
		Payload: models.ShipmentCreatedEvent{
			EventType:      models.EventShipmentCreated,
			ShipmentID:     shipment.ID.String(),
			UserID:         userID,
			Carrier:        carrierName,
			ServiceCode:    shipment.ServiceCode,
			TrackingNumber: shipment.TrackingNumber,
			LabelURL:       shipment.LabelURL,
			Cost:           shipment.Cost.StringFixed(2),
			Currency:       shipment.Currency,
			Timestamp:      time.Now().UTC(),
		},
	})

	return shipment, nil
}

func (s *shippingServiceImpl) PurchaseLabel(ctx context.Context, userID, carrierName, shipmentID string) (*models.Label, *ServiceError) {
	c, svcErr := s.carrierFor(ctx, userID, carrierName)
	if svcErr != nil {
		return nil, svcErr
	}
	label, err := c.PurchaseLabel(ctx, shipmentID)
	if err != nil {
		return nil, s.carrierFailure(carrierName, "purchase label", err)
	}

	if len(label.Data) > 0 {
		if url := s.storeLabel(ctx, userID, carrierName, shipmentID, label); url != "" {
			return &models.Label{URL: url, Format: label.Format}, nil
		}
	}
	return label, nil
}

// TrackShipment returns the carrier's tracking state and, when the user has a
// matching shipment record whose status changed, updates it and publishes
// shipment_updated.
func (s *shippingServiceImpl) TrackShipment(ctx context.Context, userID, carrierName, trackingNumber string) (*models.TrackingResponse, *ServiceError) {
	c, svcErr := s.carrierFor(ctx, userID, carrierName)
	if svcErr != nil {
		return nil, svcErr
	}

	status, err := c.TrackShipment(ctx, trackingNumber)
	if err != nil {
		return nil, s.carrierFailure(carrierName, "track shipment", err)
	}

	record, err := s.shipments.FindByTrackingNumber(ctx, userID, carrierName, trackingNumber)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("Failed to load shipment for tracking update", zap.String("tracking_number", trackingNumber), zap.Error(err))
		}
		return status, nil
	}

	if status.Status == models.TrackingStatusUnknown || record.Status == status.Status {
		return status, nil
	}
	record.Status = status.Status
	if err := s.shipments.Update(ctx, record); err != nil {
		s.logger.Warn("Failed to update shipment status", zap.String("tracking_number", trackingNumber), zap.Error(err))
		return status, nil
	}

	s.publishEvent(ctx, events.Event{
		Type: models.EventShipmentUpdated,
		Key:  record.ID.String(),
		Payload: models.ShipmentUpdatedEvent{
			EventType:      models.EventShipmentUpdated,
			ShipmentID:     record.ID.String(),
			UserID:         userID,
			Carrier:        carrierName,
			TrackingNumber: trackingNumber,
			Status:         status.Status,
			Timestamp:      time.Now().UTC(),
		},
	})
	return status, nil
}

func (s *shippingServiceImpl) ListShipments(ctx context.Context, userID string, page, limit int) ([]models.Shipment, int64, *ServiceError) {
	list, total, err := s.shipments.FindByUser(ctx, userID, page, limit)
	if err != nil {
		s.logger.Error("Failed to list shipments", zap.Error(err))
		return nil, 0, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load shipments"}
	}
	if list == nil {
		list = []models.Shipment{}
	}
	return list, total, nil
}

// ---- helpers ----

// registryFor builds a CarrierService holding every active carrier of the
// user. Configurations that cannot be turned into an adapter are skipped.
func (s *shippingServiceImpl) registryFor(ctx context.Context, userID string) (*CarrierService, *ServiceError) {
	cfgs, err := s.configs.ListActive(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load active carriers", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load carrier configurations"}
	}

	registry := NewCarrierService(s.timeout, s.logger)
	for i := range cfgs {
		c, err := s.newCarrier(&cfgs[i])
		if err != nil {
			s.logger.Warn("Skipping unusable carrier configuration",
				zap.String("carrier", cfgs[i].CarrierName),
				zap.Error(err),
			)
			continue
		}
		registry.RegisterCarrier(c)
	}
	return registry, nil
}

func (s *shippingServiceImpl) carrierFor(ctx context.Context, userID, carrierName string) (carriers.Carrier, *ServiceError) {
	if !carriers.IsSupported(carrierName) {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("Unsupported carrier %q", carrierName)}
	}
	cfg, err := s.configs.Get(ctx, userID, carrierName)
	if err != nil {
		if errors.Is(err, carriers.ErrConfigurationNotFound) {
			return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("Carrier %q is not configured", carrierName)}
		}
		s.logger.Error("Failed to load carrier configuration", zap.String("carrier", carrierName), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load carrier configuration"}
	}
	if !cfg.IsActive {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("Carrier %q is not active", carrierName)}
	}
	c, err := s.newCarrier(cfg)
	if err != nil {
		return nil, s.carrierFailure(carrierName, "configure", err)
	}
	return c, nil
}

// carrierFailure maps an adapter error to the HTTP-facing error.
func (s *shippingServiceImpl) carrierFailure(carrierName, operation string, err error) *ServiceError {
	var ce *carriers.CarrierError
	switch {
	case errors.Is(err, carriers.ErrReauthorizationRequired):
		s.logger.Warn("Carrier requires re-authorization", zap.String("carrier", carrierName))
		return &ServiceError{StatusCode: http.StatusUnauthorized, Code: CodeReauthorizationRequired, Message: err.Error()}
	case errors.Is(err, carriers.ErrConfigurationNotFound), errors.Is(err, ErrCarrierNotRegistered), errors.Is(err, carriers.ErrUnsupportedCarrier):
		return &ServiceError{StatusCode: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, carriers.ErrLabelNotAvailable):
		return &ServiceError{StatusCode: http.StatusNotFound, Message: "Label not available yet"}
	case errors.Is(err, carriers.ErrMissingCredentials):
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: "Carrier configuration incomplete: " + err.Error()}
	case errors.As(err, &ce):
		s.logger.Error("Carrier request failed",
			zap.String("carrier", carrierName),
			zap.String("operation", operation),
			zap.Int("status", ce.StatusCode),
			zap.String("body", ce.Body),
		)
		return &ServiceError{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("Failed to %s: carrier returned status %d", operation, ce.StatusCode)}
	default:
		s.logger.Error("Carrier request failed",
			zap.String("carrier", carrierName),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return &ServiceError{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("Failed to %s: %v", operation, err)}
	}
}

// storeLabel uploads label bytes and returns the resulting URL, or the
// label's own URL when there is no store or the upload fails.
func (s *shippingServiceImpl) storeLabel(ctx context.Context, userID, carrierName, name string, label *models.Label) string {
	if s.labels == nil || len(label.Data) == 0 {
		return label.URL
	}
	url, err := s.labels.Store(ctx, userID, carrierName, name, label)
	if err != nil {
		s.logger.Error("Failed to store label", zap.String("carrier", carrierName), zap.Error(err))
		return label.URL
	}
	return url
}

func (s *shippingServiceImpl) invalidateRates(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("Failed to invalidate rate cache", zap.String("user_id", userID), zap.Error(err))
	}
}

// publishEvent publishes an event (non-fatal on error).
func (s *shippingServiceImpl) publishEvent(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		s.logger.Debug("Event publisher not configured, skipping", zap.String("event_type", event.Type))
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", zap.String("event_type", event.Type), zap.Error(err))
		return
	}
	s.logger.Info("Published event", zap.String("event_type", event.Type), zap.String("key", event.Key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
