package carriers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"carrier-service/metrics"
	"carrier-service/models"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// Token lookahead windows. Shipment, label and tracking calls need a token
// that survives the whole exchange; rate calls only reject already-expired
// tokens.
const (
	ShipmentTokenLookahead = 30 * time.Minute
	RateTokenLookahead     = 0
)

const (
	UPSTokenPath   = "/security/v1/oauth/token"
	UPSRefreshPath = "/security/v1/oauth/refresh"

	// used when the grant response carries no expires_in
	defaultUPSTokenTTL = 4 * time.Hour

	// bounds a shared refresh independently of the request that started it
	tokenRefreshTimeout = 30 * time.Second
)

// CredentialStore is the persistence boundary for carrier configurations.
type CredentialStore interface {
	Get(ctx context.Context, userID, carrierName string) (*models.CarrierConfiguration, error)
	SaveTokens(ctx context.Context, userID, carrierName, accessToken, refreshToken string, expiresAt time.Time) error
}

// UPSTokenManager keeps a user's UPS access token usable, refreshing it
// through the OAuth refresh_token grant and writing the result back to the
// store.
type UPSTokenManager struct {
	store      CredentialStore
	tokenURL   string
	refreshURL string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	flights singleflight.Group
}

// NewUPSTokenManager creates a token manager. Empty URLs default to the UPS
// production OAuth endpoints.
func NewUPSTokenManager(store CredentialStore, tokenURL, refreshURL string, hc *http.Client, logger *zap.Logger) *UPSTokenManager {
	if tokenURL == "" {
		tokenURL = UPSProductionURL + UPSTokenPath
	}
	if refreshURL == "" {
		refreshURL = UPSProductionURL + UPSRefreshPath
	}
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UPSTokenManager{
		store:      store,
		tokenURL:   tokenURL,
		refreshURL: refreshURL,
		httpClient: hc,
		logger:     logger,
		now:        time.Now,
	}
}

// EnsureValidToken returns an access token that stays valid for at least
// lookahead. An expired token is refreshed once; concurrent callers for the
// same user share the refresh.
func (m *UPSTokenManager) EnsureValidToken(ctx context.Context, userID string, lookahead time.Duration) (string, error) {
	cfg, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if cfg.Credentials.TokenValidFor(m.now(), lookahead) {
		return cfg.Credentials.AccessToken, nil
	}
	if cfg.Credentials.RefreshToken == "" {
		return "", ErrReauthorizationRequired
	}

	v, err, shared := m.flights.Do(userID, func() (interface{}, error) {
		// A rotated refresh token must reach the store even if the caller
		// that started the flight goes away.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenRefreshTimeout)
		defer cancel()

		// Callers with different lookaheads share this flight, so the token
		// handed out must satisfy the strictest of them.
		cfg, err := m.load(fctx, userID)
		if err != nil {
			return "", err
		}
		if cfg.Credentials.TokenValidFor(m.now(), max(lookahead, ShipmentTokenLookahead)) {
			return cfg.Credentials.AccessToken, nil
		}
		if cfg.Credentials.RefreshToken == "" {
			return "", ErrReauthorizationRequired
		}
		return m.refresh(fctx, cfg)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("Shared UPS token refresh", zap.String("user_id", userID))
	}
	return v.(string), nil
}

// Authorize obtains a token with the client_credentials grant. It serves
// accounts that were configured with only a client id and secret.
func (m *UPSTokenManager) Authorize(ctx context.Context, userID string) (string, error) {
	cfg, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	creds := cfg.Credentials
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return "", fmt.Errorf("%w: ups client id and secret", ErrMissingCredentials)
	}

	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     m.tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tok, err := cc.Token(m.oauthContext(ctx))
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("client_credentials", "error").Inc()
		return "", tokenError("token", err)
	}
	metrics.TokenRefreshes.WithLabelValues("client_credentials", "success").Inc()

	if err := m.persist(ctx, cfg, tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (m *UPSTokenManager) refresh(ctx context.Context, cfg *models.CarrierConfiguration) (string, error) {
	creds := cfg.Credentials
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.refreshURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	// An empty access token forces the source to run the refresh grant.
	tok, err := conf.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("refresh_token", "error").Inc()
		m.logger.Warn("UPS token refresh failed", zap.String("user_id", cfg.UserID), zap.Error(err))
		return "", tokenError("token_refresh", err)
	}
	metrics.TokenRefreshes.WithLabelValues("refresh_token", "success").Inc()

	if err := m.persist(ctx, cfg, tok); err != nil {
		return "", err
	}
	m.logger.Info("Refreshed UPS access token",
		zap.String("user_id", cfg.UserID),
		zap.Time("expires_at", m.expiry(tok)),
	)
	return tok.AccessToken, nil
}

func (m *UPSTokenManager) persist(ctx context.Context, cfg *models.CarrierConfiguration, tok *oauth2.Token) error {
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = cfg.Credentials.RefreshToken
	}
	if err := m.store.SaveTokens(ctx, cfg.UserID, models.CarrierUPS, tok.AccessToken, refreshToken, m.expiry(tok)); err != nil {
		return fmt.Errorf("persist ups tokens: %w", err)
	}
	return nil
}

func (m *UPSTokenManager) expiry(tok *oauth2.Token) time.Time {
	if tok.Expiry.IsZero() {
		return m.now().Add(defaultUPSTokenTTL)
	}
	return tok.Expiry
}

func (m *UPSTokenManager) load(ctx context.Context, userID string) (*models.CarrierConfiguration, error) {
	cfg, err := m.store.Get(ctx, userID, models.CarrierUPS)
	if err != nil {
		return nil, fmt.Errorf("load ups configuration: %w", err)
	}
	if cfg == nil {
		return nil, ErrConfigurationNotFound
	}
	return cfg, nil
}

func (m *UPSTokenManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// tokenError converts an oauth2 grant failure into a CarrierError so callers
// see the vendor status and body.
func tokenError(operation string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &CarrierError{
			Carrier:    models.CarrierUPS,
			Operation:  operation,
			StatusCode: re.Response.StatusCode,
			Body:       string(re.Body),
		}
	}
	return fmt.Errorf("ups %s: %w", operation, err)
}
