package carriers_test

import (
	"context"
	"sync"
	"time"

	"carrier-service/carriers"
	"carrier-service/models"
)

// ---- in-memory credential store ----

type memStore struct {
	mu      sync.Mutex
	configs map[string]models.CarrierConfiguration
	saves   int
}

func newMemStore(cfgs ...models.CarrierConfiguration) *memStore {
	s := &memStore{configs: map[string]models.CarrierConfiguration{}}
	for _, c := range cfgs {
		s.configs[c.UserID+"/"+c.CarrierName] = c
	}
	return s
}

func (s *memStore) Get(_ context.Context, userID, carrierName string) (*models.CarrierConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[userID+"/"+carrierName]
	if !ok {
		return nil, carriers.ErrConfigurationNotFound
	}
	return &c, nil
}

func (s *memStore) SaveTokens(_ context.Context, userID, carrierName, access, refresh string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + carrierName
	c := s.configs[key]
	c.Credentials.AccessToken = access
	c.Credentials.RefreshToken = refresh
	c.Credentials.TokenExpiresAt = &expiresAt
	s.configs[key] = c
	s.saves++
	return nil
}

func (s *memStore) credentials(userID, carrierName string) models.CarrierCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[userID+"/"+carrierName].Credentials
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// ---- fixtures ----

func timePtr(t time.Time) *time.Time { return &t }

func upsConfig(userID string, creds models.CarrierCredentials) models.CarrierConfiguration {
	return models.CarrierConfiguration{
		UserID:        userID,
		CarrierName:   models.CarrierUPS,
		AccountNumber: "A1B2C3",
		Credentials:   creds,
		IsActive:      true,
	}
}

func domesticDetails() models.ShipmentDetails {
	return models.ShipmentDetails{
		FromAddress: models.Address{
			Name: "Warehouse", Street1: "1 Main St", City: "Ottawa", State: "ON",
			PostalCode: "K1A 0B1", Country: "CA", Phone: "6135550100",
		},
		ToAddress: models.Address{
			Name: "Jane Doe", Street1: "22 Rue Ste-Catherine", City: "Montreal", State: "QC",
			PostalCode: "h2x 1k4", Country: "CA",
		},
		Package: models.Package{
			Weight: 2.2, Length: 10, Width: 8, Height: 4,
			WeightUnit: models.WeightUnitLB, DimensionUnit: models.DimensionUnitIN,
		},
		Reference: "order-42",
	}
}
