package services_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"carrier-service/carriers"
	"carrier-service/events"
	"carrier-service/models"
	"carrier-service/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ---- mock repositories ----

type mockConfigRepo struct {
	mu      sync.Mutex
	configs map[string]*models.CarrierConfiguration
	listErr error
}

func newMockConfigRepo(cfgs ...*models.CarrierConfiguration) *mockConfigRepo {
	r := &mockConfigRepo{configs: make(map[string]*models.CarrierConfiguration)}
	for _, c := range cfgs {
		r.configs[c.UserID+"/"+c.CarrierName] = c
	}
	return r
}

func (r *mockConfigRepo) Get(_ context.Context, userID, carrierName string) (*models.CarrierConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[userID+"/"+carrierName]
	if !ok {
		return nil, carriers.ErrConfigurationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *mockConfigRepo) ListByUser(_ context.Context, userID string) ([]models.CarrierConfiguration, error) {
	return r.list(userID, false)
}

func (r *mockConfigRepo) ListActive(_ context.Context, userID string) ([]models.CarrierConfiguration, error) {
	return r.list(userID, true)
}

func (r *mockConfigRepo) list(userID string, activeOnly bool) ([]models.CarrierConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.CarrierConfiguration
	for _, c := range r.configs {
		if c.UserID == userID && (!activeOnly || c.IsActive) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *mockConfigRepo) Upsert(_ context.Context, cfg *models.CarrierConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cp := *cfg
	r.configs[cfg.UserID+"/"+cfg.CarrierName] = &cp
	return nil
}

func (r *mockConfigRepo) Deactivate(_ context.Context, userID, carrierName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[userID+"/"+carrierName]
	if !ok {
		return carriers.ErrConfigurationNotFound
	}
	c.IsActive = false
	return nil
}

func (r *mockConfigRepo) SaveTokens(_ context.Context, userID, carrierName, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[userID+"/"+carrierName]
	if !ok {
		return carriers.ErrConfigurationNotFound
	}
	c.Credentials.AccessToken = accessToken
	c.Credentials.RefreshToken = refreshToken
	c.Credentials.TokenExpiresAt = &expiresAt
	return nil
}

type mockShipmentRepo struct {
	mu        sync.Mutex
	shipments []*models.Shipment
	createErr error
	updated   []*models.Shipment
}

func (r *mockShipmentRepo) Create(_ context.Context, s *models.Shipment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.New()
	r.shipments = append(r.shipments, s)
	return nil
}

func (r *mockShipmentRepo) FindByID(_ context.Context, userID string, id uuid.UUID) (*models.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shipments {
		if s.UserID == userID && s.ID == id {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockShipmentRepo) FindByTrackingNumber(_ context.Context, userID, carrierName, trackingNumber string) (*models.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shipments {
		if s.UserID == userID && s.CarrierName == carrierName && s.TrackingNumber == trackingNumber {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockShipmentRepo) Update(_ context.Context, s *models.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, s)
	return nil
}

func (r *mockShipmentRepo) FindByUser(_ context.Context, userID string, _, _ int) ([]models.Shipment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Shipment
	for _, s := range r.shipments {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

// ---- mock cache, label store and publisher ----

type mockRateCache struct {
	mu          sync.Mutex
	entries     map[string][]models.RateResponse
	invalidated []string
}

func newMockRateCache() *mockRateCache {
	return &mockRateCache{entries: make(map[string][]models.RateResponse)}
}

func (c *mockRateCache) Get(_ context.Context, userID string, _ models.ShipmentDetails) ([]models.RateResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[userID]
	return r, ok, nil
}

func (c *mockRateCache) Set(_ context.Context, userID string, _ models.ShipmentDetails, rates []models.RateResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(rates) > 0 {
		c.entries[userID] = rates
	}
	return nil
}

func (c *mockRateCache) InvalidateUser(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type mockLabelStore struct {
	stored []string
	err    error
}

func (s *mockLabelStore) Store(_ context.Context, userID, carrier, trackingNumber string, _ *models.Label) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.stored = append(s.stored, trackingNumber)
	return "https://labels.example.com/" + userID + "/" + carrier + "/" + trackingNumber + ".pdf", nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *mockPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *mockPublisher) Close() error { return nil }

// ---- fixture ----

type fixture struct {
	configs   *mockConfigRepo
	shipments *mockShipmentRepo
	cache     *mockRateCache
	labels    *mockLabelStore
	publisher *mockPublisher
	adapters  map[string]*mockCarrier
	built     int
	svc       services.ShippingService
}

func newFixture(cfgs ...*models.CarrierConfiguration) *fixture {
	f := &fixture{
		configs:   newMockConfigRepo(cfgs...),
		shipments: &mockShipmentRepo{},
		cache:     newMockRateCache(),
		labels:    &mockLabelStore{},
		publisher: &mockPublisher{},
		adapters:  make(map[string]*mockCarrier),
	}
	factory := func(cfg *models.CarrierConfiguration) (carriers.Carrier, error) {
		f.built++
		c, ok := f.adapters[cfg.CarrierName]
		if !ok {
			return nil, carriers.ErrMissingCredentials
		}
		return c, nil
	}
	f.svc = services.NewShippingService(services.ShippingDeps{
		Configs:        f.configs,
		Shipments:      f.shipments,
		NewCarrier:     factory,
		Cache:          f.cache,
		Labels:         f.labels,
		Publisher:      f.publisher,
		CarrierTimeout: time.Second,
		Logger:         zap.NewNop(),
	})
	return f
}

func activeConfig(userID, carrier string) *models.CarrierConfiguration {
	return &models.CarrierConfiguration{ID: uuid.New(), UserID: userID, CarrierName: carrier, IsActive: true}
}

// ---- carrier configuration ----

func TestUpsertCarrier_Unsupported(t *testing.T) {
	f := newFixture()
	_, svcErr := f.svc.UpsertCarrier(context.Background(), "user-1", "fedex", &models.CarrierConfigRequest{})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
}

func TestUpsertCarrier_KeepsTokensAndRedacts(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	existing := activeConfig("user-1", models.CarrierUPS)
	existing.Credentials = models.CarrierCredentials{
		ClientID:       "old-client",
		AccessToken:    "access-token-1234",
		RefreshToken:   "refresh-token-5678",
		TokenExpiresAt: &expires,
	}
	f := newFixture(existing)
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS}

	inactive := false
	out, svcErr := f.svc.UpsertCarrier(context.Background(), "user-1", models.CarrierUPS, &models.CarrierConfigRequest{
		AccountNumber: "A1B2C3",
		Credentials:   models.CarrierCredentials{ClientID: "new-client-id", ClientSecret: "new-secret"},
		Settings:      models.CarrierSettings{MarkupPercentage: decimal.NewFromInt(10)},
		IsActive:      &inactive,
	})
	require.Nil(t, svcErr)
	assert.Equal(t, existing.ID, out.ID)
	assert.False(t, out.IsActive)
	assert.Equal(t, "****t-id", out.Credentials.ClientID)

	stored, err := f.configs.Get(context.Background(), "user-1", models.CarrierUPS)
	require.NoError(t, err)
	assert.Equal(t, "new-client-id", stored.Credentials.ClientID)
	assert.Equal(t, "access-token-1234", stored.Credentials.AccessToken)
	assert.Equal(t, "refresh-token-5678", stored.Credentials.RefreshToken)
	assert.Equal(t, []string{"user-1"}, f.cache.invalidated)
}

func TestUpsertCarrier_SettingsOnlyUpdateKeepsSecrets(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	existing := activeConfig("user-1", models.CarrierUPS)
	existing.Credentials = models.CarrierCredentials{
		ClientID:       "client-id-1234",
		ClientSecret:   "client-secret-5678",
		AccessToken:    "access-token-1234",
		RefreshToken:   "refresh-token-5678",
		TokenExpiresAt: &expires,
	}
	f := newFixture(existing)
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS}

	_, svcErr := f.svc.UpsertCarrier(context.Background(), "user-1", models.CarrierUPS, &models.CarrierConfigRequest{
		AccountNumber: "A1B2C3",
		Settings:      models.CarrierSettings{MarkupPercentage: decimal.NewFromInt(5)},
	})
	require.Nil(t, svcErr)

	stored, err := f.configs.Get(context.Background(), "user-1", models.CarrierUPS)
	require.NoError(t, err)
	assert.Equal(t, "client-id-1234", stored.Credentials.ClientID)
	assert.Equal(t, "client-secret-5678", stored.Credentials.ClientSecret)
	assert.Equal(t, "refresh-token-5678", stored.Credentials.RefreshToken)
	assert.True(t, stored.Settings.MarkupPercentage.Equal(decimal.NewFromInt(5)))

	// a client that round-trips the redacted listing must not overwrite secrets
	_, svcErr = f.svc.UpsertCarrier(context.Background(), "user-1", models.CarrierUPS, &models.CarrierConfigRequest{
		AccountNumber: "A1B2C3",
		Credentials:   existing.Credentials.Redacted(),
	})
	require.Nil(t, svcErr)

	stored, err = f.configs.Get(context.Background(), "user-1", models.CarrierUPS)
	require.NoError(t, err)
	assert.Equal(t, "client-id-1234", stored.Credentials.ClientID)
	assert.Equal(t, "client-secret-5678", stored.Credentials.ClientSecret)
	assert.Equal(t, "access-token-1234", stored.Credentials.AccessToken)
	assert.Equal(t, "refresh-token-5678", stored.Credentials.RefreshToken)
	require.NotNil(t, stored.Credentials.TokenExpiresAt)
	assert.True(t, stored.Credentials.TokenExpiresAt.Equal(expires))
}

func TestUpsertCarrier_RejectsUnbuildableConfig(t *testing.T) {
	f := newFixture()
	_, svcErr := f.svc.UpsertCarrier(context.Background(), "user-1", models.CarrierCanadaPost, &models.CarrierConfigRequest{})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
}

func TestListCarriers_Redacted(t *testing.T) {
	cfg := activeConfig("user-1", models.CarrierShipStation)
	cfg.Credentials = models.CarrierCredentials{APIKey: "abcdefgh", APISecret: "secret-value"}
	f := newFixture(cfg)

	list, svcErr := f.svc.ListCarriers(context.Background(), "user-1")
	require.Nil(t, svcErr)
	require.Len(t, list, 1)
	assert.Equal(t, "****efgh", list[0].Credentials.APIKey)
	assert.Equal(t, "****alue", list[0].Credentials.APISecret)
}

func TestDeactivateCarrier(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierUPS))

	assert.Nil(t, f.svc.DeactivateCarrier(context.Background(), "user-1", models.CarrierUPS))
	assert.Equal(t, []string{"user-1"}, f.cache.invalidated)

	svcErr := f.svc.DeactivateCarrier(context.Background(), "user-1", models.CarrierCanadaPost)
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}

// ---- rates ----

func TestGetAllRates_FansOutAndCaches(t *testing.T) {
	f := newFixture(
		activeConfig("user-1", models.CarrierUPS),
		activeConfig("user-1", models.CarrierCanadaPost),
	)
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, rates: []models.RateResponse{rate("ups", "03", "12.00", "13.20")}}
	f.adapters[models.CarrierCanadaPost] = &mockCarrier{name: models.CarrierCanadaPost, ratesErr: errors.New("down")}

	rates, svcErr := f.svc.GetAllRates(context.Background(), "user-1", details())
	require.Nil(t, svcErr)
	require.Len(t, rates, 1)
	assert.Equal(t, "ups", rates[0].CarrierName)
	assert.Equal(t, 2, f.built)

	again, svcErr := f.svc.GetAllRates(context.Background(), "user-1", details())
	require.Nil(t, svcErr)
	assert.Equal(t, rates, again)
	assert.Equal(t, 2, f.built, "second call should be served from cache")
	assert.Equal(t, int32(1), f.adapters[models.CarrierUPS].calls.Load())
}

func TestGetAllRates_SkipsInactiveAndUnbuildable(t *testing.T) {
	inactive := activeConfig("user-1", models.CarrierShipStation)
	inactive.IsActive = false
	f := newFixture(
		activeConfig("user-1", models.CarrierCanadaPost),
		activeConfig("user-1", models.CarrierUPS),
		inactive,
	)
	f.adapters[models.CarrierCanadaPost] = &mockCarrier{name: models.CarrierCanadaPost, rates: []models.RateResponse{rate("canada_post", "DOM.RP", "9.99")}}
	f.adapters[models.CarrierShipStation] = &mockCarrier{name: models.CarrierShipStation, rates: []models.RateResponse{rate("shipstation", "x", "1.00")}}

	rates, svcErr := f.svc.GetAllRates(context.Background(), "user-1", details())
	require.Nil(t, svcErr)
	require.Len(t, rates, 1)
	assert.Equal(t, "canada_post", rates[0].CarrierName)
	assert.Equal(t, int32(0), f.adapters[models.CarrierShipStation].calls.Load())
}

func TestGetAllRates_InvalidDetails(t *testing.T) {
	f := newFixture()
	d := details()
	d.Package.Weight = 0

	_, svcErr := f.svc.GetAllRates(context.Background(), "user-1", d)
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
}

func TestGetAllRates_RepositoryFailure(t *testing.T) {
	f := newFixture()
	f.configs.listErr = errors.New("connection refused")

	_, svcErr := f.svc.GetAllRates(context.Background(), "user-1", details())
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusInternalServerError, svcErr.StatusCode)
}

func TestFindBestRate_NoCarriers(t *testing.T) {
	f := newFixture()
	best, svcErr := f.svc.FindBestRate(context.Background(), "user-1", details())
	assert.Nil(t, svcErr)
	assert.Nil(t, best)
}

func TestFindBestRate_Cheapest(t *testing.T) {
	f := newFixture(
		activeConfig("user-1", models.CarrierUPS),
		activeConfig("user-1", models.CarrierShipStation),
	)
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, rates: []models.RateResponse{rate("ups", "03", "12.00", "13.20")}}
	f.adapters[models.CarrierShipStation] = &mockCarrier{name: models.CarrierShipStation, rates: []models.RateResponse{rate("shipstation", "usps_priority_mail", "10.00", "13.50")}}

	best, svcErr := f.svc.FindBestRate(context.Background(), "user-1", details())
	require.Nil(t, svcErr)
	require.NotNil(t, best)
	assert.Equal(t, "ups", best.CarrierName)
}

func TestGetRates_SingleCarrierErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"reauthorization", carriers.ErrReauthorizationRequired, http.StatusUnauthorized, services.CodeReauthorizationRequired},
		{"vendor error", &carriers.CarrierError{Carrier: "ups", Operation: "rate", StatusCode: 503, Body: "unavailable"}, http.StatusBadGateway, ""},
		{"invalid response", carriers.ErrInvalidResponse, http.StatusBadGateway, ""},
		{"missing credentials", carriers.ErrMissingCredentials, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(activeConfig("user-1", models.CarrierUPS))
			f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, ratesErr: tt.err}

			_, svcErr := f.svc.GetRates(context.Background(), "user-1", models.CarrierUPS, details())
			require.NotNil(t, svcErr)
			assert.Equal(t, tt.status, svcErr.StatusCode)
			assert.Equal(t, tt.code, svcErr.Code)
		})
	}
}

func TestGetRates_NotConfigured(t *testing.T) {
	f := newFixture()
	_, svcErr := f.svc.GetRates(context.Background(), "user-1", models.CarrierUPS, details())
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)

	_, svcErr = f.svc.GetRates(context.Background(), "user-1", "fedex", details())
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}

// ---- shipments ----

func TestCreateShipment_StoresLabelAndPublishes(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierUPS))
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, shipment: &models.ShipmentResponse{
		ShipmentID:     "1Z999AA10123456784",
		TrackingNumber: "1Z999AA10123456784",
		ServiceCode:    "03",
		CarrierName:    models.CarrierUPS,
		Cost:           decimal.RequireFromString("18.42"),
		Currency:       "CAD",
		Label:          &models.Label{Data: []byte("%PDF"), Format: "PDF"},
	}}

	s, svcErr := f.svc.CreateShipment(context.Background(), "user-1", models.CarrierUPS, &models.CreateShipmentRequest{
		ServiceCode: "03",
		Details:     details(),
	})
	require.Nil(t, svcErr)
	assert.Equal(t, models.ShipmentStatusLabeled, s.Status)
	assert.Equal(t, "https://labels.example.com/user-1/ups/1Z999AA10123456784.pdf", s.LabelURL)
	assert.Equal(t, "PDF", s.LabelFormat)
	assert.NotEmpty(t, s.DetailsJSON)
	require.Len(t, f.shipments.shipments, 1)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, models.EventShipmentCreated, ev.Type)
	payload, ok := ev.Payload.(models.ShipmentCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "18.42", payload.Cost)
	assert.Equal(t, s.ID.String(), payload.ShipmentID)
}

func TestCreateShipment_LabelStoreFailureKeepsShipment(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierUPS))
	f.labels.err = errors.New("s3 unavailable")
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, shipment: &models.ShipmentResponse{
		TrackingNumber: "1Z1",
		Label:          &models.Label{Data: []byte("GIF89a"), Format: "GIF"},
	}}

	s, svcErr := f.svc.CreateShipment(context.Background(), "user-1", models.CarrierUPS, &models.CreateShipmentRequest{ServiceCode: "03", Details: details()})
	require.Nil(t, svcErr)
	assert.Equal(t, models.ShipmentStatusCreated, s.Status)
	assert.Empty(t, s.LabelURL)
}

func TestCreateShipment_PublishFailureIsNonFatal(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierShipStation))
	f.publisher.err = errors.New("broker down")
	f.adapters[models.CarrierShipStation] = &mockCarrier{name: models.CarrierShipStation, shipment: &models.ShipmentResponse{
		ShipmentID: "42",
		Label:      &models.Label{URL: "https://ss.example.com/label/42.pdf", Format: "PDF"},
	}}

	s, svcErr := f.svc.CreateShipment(context.Background(), "user-1", models.CarrierShipStation, &models.CreateShipmentRequest{ServiceCode: "usps_priority_mail", Details: details()})
	require.Nil(t, svcErr)
	assert.Equal(t, "https://ss.example.com/label/42.pdf", s.LabelURL)
	assert.Equal(t, models.ShipmentStatusLabeled, s.Status)
	assert.Empty(t, f.labels.stored)
}

func TestCreateShipment_Reauthorization(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierUPS))
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, shipErr: carriers.ErrReauthorizationRequired}

	_, svcErr := f.svc.CreateShipment(context.Background(), "user-1", models.CarrierUPS, &models.CreateShipmentRequest{ServiceCode: "03", Details: details()})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusUnauthorized, svcErr.StatusCode)
	assert.Equal(t, services.CodeReauthorizationRequired, svcErr.Code)
	assert.Empty(t, f.shipments.shipments)
	assert.Empty(t, f.publisher.events)
}

func TestCreateShipment_PersistFailure(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierUPS))
	f.shipments.createErr = errors.New("db down")
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, shipment: &models.ShipmentResponse{TrackingNumber: "1Z1"}}

	_, svcErr := f.svc.CreateShipment(context.Background(), "user-1", models.CarrierUPS, &models.CreateShipmentRequest{ServiceCode: "03", Details: details()})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusInternalServerError, svcErr.StatusCode)
	assert.Empty(t, f.publisher.events)
}

func TestPurchaseLabel(t *testing.T) {
	t.Run("embedded label is stored", func(t *testing.T) {
		f := newFixture(activeConfig("user-1", models.CarrierCanadaPost))
		f.adapters[models.CarrierCanadaPost] = &mockCarrier{name: models.CarrierCanadaPost, label: &models.Label{Data: []byte("%PDF"), Format: "PDF"}}

		label, svcErr := f.svc.PurchaseLabel(context.Background(), "user-1", models.CarrierCanadaPost, "340531309186521749")
		require.Nil(t, svcErr)
		assert.Equal(t, "https://labels.example.com/user-1/canada_post/340531309186521749.pdf", label.URL)
		assert.Empty(t, label.Data)
	})

	t.Run("not ready", func(t *testing.T) {
		f := newFixture(activeConfig("user-1", models.CarrierCanadaPost))
		f.adapters[models.CarrierCanadaPost] = &mockCarrier{name: models.CarrierCanadaPost, labelErr: carriers.ErrLabelNotAvailable}

		_, svcErr := f.svc.PurchaseLabel(context.Background(), "user-1", models.CarrierCanadaPost, "1")
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
	})
}

func TestTrackShipment_UpdatesStatusAndPublishes(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierUPS))
	f.shipments.shipments = []*models.Shipment{{
		ID:             uuid.New(),
		UserID:         "user-1",
		CarrierName:    models.CarrierUPS,
		TrackingNumber: "1Z1",
		Status:         models.ShipmentStatusLabeled,
	}}
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, tracking: &models.TrackingResponse{
		TrackingNumber: "1Z1",
		CarrierName:    models.CarrierUPS,
		Status:         models.TrackingStatusInTransit,
	}}

	status, svcErr := f.svc.TrackShipment(context.Background(), "user-1", models.CarrierUPS, "1Z1")
	require.Nil(t, svcErr)
	assert.Equal(t, models.TrackingStatusInTransit, status.Status)
	require.Len(t, f.shipments.updated, 1)
	assert.Equal(t, models.ShipmentStatusInTransit, f.shipments.updated[0].Status)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.EventShipmentUpdated, f.publisher.events[0].Type)

	// Same status again: nothing to record.
	_, svcErr = f.svc.TrackShipment(context.Background(), "user-1", models.CarrierUPS, "1Z1")
	require.Nil(t, svcErr)
	assert.Len(t, f.shipments.updated, 1)
	assert.Len(t, f.publisher.events, 1)
}

func TestTrackShipment_UnknownShipment(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierUPS))
	f.adapters[models.CarrierUPS] = &mockCarrier{name: models.CarrierUPS, tracking: &models.TrackingResponse{Status: models.TrackingStatusDelivered}}

	status, svcErr := f.svc.TrackShipment(context.Background(), "user-1", models.CarrierUPS, "elsewhere")
	require.Nil(t, svcErr)
	assert.Equal(t, models.TrackingStatusDelivered, status.Status)
	assert.Empty(t, f.publisher.events)
}

func TestValidateCredentialsAndServices(t *testing.T) {
	f := newFixture(activeConfig("user-1", models.CarrierCanadaPost))
	f.adapters[models.CarrierCanadaPost] = &mockCarrier{
		name:     models.CarrierCanadaPost,
		valid:    true,
		services: []models.CarrierServiceOption{{Code: "DOM.EP", Name: "Expedited Parcel", Domestic: true}},
	}

	ok, svcErr := f.svc.ValidateCredentials(context.Background(), "user-1", models.CarrierCanadaPost)
	require.Nil(t, svcErr)
	assert.True(t, ok)

	list, svcErr := f.svc.GetServices(context.Background(), "user-1", models.CarrierCanadaPost)
	require.Nil(t, svcErr)
	require.Len(t, list, 1)
	assert.Equal(t, "DOM.EP", list[0].Code)
}

func TestListShipments(t *testing.T) {
	f := newFixture()
	list, total, svcErr := f.svc.ListShipments(context.Background(), "user-1", 1, 20)
	require.Nil(t, svcErr)
	assert.NotNil(t, list)
	assert.Zero(t, total)
}
