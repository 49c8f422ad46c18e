package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"carrier-service/carriers"
	"carrier-service/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCarrierTimeout bounds a single carrier's rate call during fan-out.
const DefaultCarrierTimeout = 15 * time.Second

var ErrCarrierNotRegistered = errors.New("services: carrier not registered")

// CarrierService is a registry of carrier adapters. Aggregate calls fan out
// to every registered carrier and tolerate individual failures; single
// carrier calls return the adapter's error.
type CarrierService struct {
	mu       sync.RWMutex
	carriers map[string]carriers.Carrier
	timeout  time.Duration
	logger   *zap.Logger
}

// NewCarrierService creates an empty registry. A zero timeout disables the
// per-carrier deadline.
func NewCarrierService(timeout time.Duration, logger *zap.Logger) *CarrierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CarrierService{
		carriers: make(map[string]carriers.Carrier),
		timeout:  timeout,
		logger:   logger,
	}
}

// RegisterCarrier adds c under its name, replacing any previous adapter.
func (s *CarrierService) RegisterCarrier(c carriers.Carrier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carriers[c.Name()] = c
}

func (s *CarrierService) UnregisterCarrier(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carriers, name)
}

// GetCarrier returns the adapter registered under name.
func (s *CarrierService) GetCarrier(name string) (carriers.Carrier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carriers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCarrierNotRegistered, name)
	}
	return c, nil
}

// CarrierNames returns the registered carrier names in sorted order.
func (s *CarrierService) CarrierNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.carriers))
	for name := range s.carriers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *CarrierService) snapshot() []carriers.Carrier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]carriers.Carrier, 0, len(s.carriers))
	for _, c := range s.carriers {
		list = append(list, c)
	}
	return list
}

// GetAllRates queries every registered carrier concurrently and returns the
// combined quotes, cheapest first. A carrier that fails contributes nothing;
// when every carrier fails the result is empty.
func (s *CarrierService) GetAllRates(ctx context.Context, details models.ShipmentDetails) []models.RateResponse {
	list := s.snapshot()
	results := make([][]models.RateResponse, len(list))

	var g errgroup.Group
	for i, c := range list {
		i, c := i, c
		g.Go(func() error {
			results[i] = s.collectRates(ctx, c, details)
			return nil
		})
	}
	_ = g.Wait()

	all := make([]models.RateResponse, 0)
	for _, r := range results {
		all = append(all, r...)
	}
	SortRates(all)
	return all
}

func (s *CarrierService) collectRates(ctx context.Context, c carriers.Carrier, details models.ShipmentDetails) (rates []models.RateResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Carrier panicked during rate request",
				zap.String("carrier", c.Name()),
				zap.Any("panic", r),
			)
			rates = nil
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	rates, err := c.GetRates(ctx, details)
	if err != nil {
		s.logger.Warn("Carrier rate request failed",
			zap.String("carrier", c.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil
	}
	return rates
}

// FindBestRate returns the cheapest quote across all carriers, or nil when no
// carrier returned one.
func (s *CarrierService) FindBestRate(ctx context.Context, details models.ShipmentDetails) *models.RateResponse {
	rates := s.GetAllRates(ctx, details)
	if len(rates) == 0 {
		return nil
	}
	best := rates[0]
	return &best
}

// SortRates orders rates by effective price. Equal prices fall back to carrier
// name and then service code so the order is deterministic.
func SortRates(rates []models.RateResponse) {
	slices.SortStableFunc(rates, func(a, b models.RateResponse) int {
		if c := a.EffectiveRate().Cmp(b.EffectiveRate()); c != 0 {
			return c
		}
		if c := strings.Compare(a.CarrierName, b.CarrierName); c != 0 {
			return c
		}
		return strings.Compare(a.ServiceCode, b.ServiceCode)
	})
}

func (s *CarrierService) GetRates(ctx context.Context, carrierName string, details models.ShipmentDetails) ([]models.RateResponse, error) {
	c, err := s.GetCarrier(carrierName)
	if err != nil {
		return nil, err
	}
	return c.GetRates(ctx, details)
}

func (s *CarrierService) CreateShipment(ctx context.Context, carrierName string, details models.ShipmentDetails, serviceCode string) (*models.ShipmentResponse, error) {
	c, err := s.GetCarrier(carrierName)
	if err != nil {
		return nil, err
	}
	return c.CreateShipment(ctx, details, serviceCode)
}

func (s *CarrierService) PurchaseLabel(ctx context.Context, carrierName, shipmentID string) (*models.Label, error) {
	c, err := s.GetCarrier(carrierName)
	if err != nil {
		return nil, err
	}
	return c.PurchaseLabel(ctx, shipmentID)
}

func (s *CarrierService) TrackShipment(ctx context.Context, carrierName, trackingNumber string) (*models.TrackingResponse, error) {
	c, err := s.GetCarrier(carrierName)
	if err != nil {
		return nil, err
	}
	return c.TrackShipment(ctx, trackingNumber)
}

func (s *CarrierService) ValidateCredentials(ctx context.Context, carrierName string) (bool, error) {
	c, err := s.GetCarrier(carrierName)
	if err != nil {
		return false, err
	}
	return c.ValidateCredentials(ctx)
}

func (s *CarrierService) GetServices(ctx context.Context, carrierName string) ([]models.CarrierServiceOption, error) {
	c, err := s.GetCarrier(carrierName)
	if err != nil {
		return nil, err
	}
	return c.GetServices(ctx)
}
