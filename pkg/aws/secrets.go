package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Secret keys stored under the service prefix.
const (
	SecretDBCredentials         = "DB_CREDENTIALS"
	SecretShipStationProxyToken = "SHIPSTATION_PROXY_TOKEN"
	SecretJWT                   = "JWT_SECRET"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient reads the service's secrets, all stored as
// "<prefix>/<key>", and caches them for the life of the process.
type SecretsClient struct {
	client SecretsAPI
	prefix string
	cache  map[string]string
	mu     sync.RWMutex
}

func NewSecretsClient(cfg sdkaws.Config, prefix string) *SecretsClient {
	return NewSecretsClientWithAPI(secretsmanager.NewFromConfig(cfg), prefix)
}

func NewSecretsClientWithAPI(api SecretsAPI, prefix string) *SecretsClient {
	return &SecretsClient{
		client: api,
		prefix: prefix,
		cache:  make(map[string]string),
	}
}

func (s *SecretsClient) GetSecret(ctx context.Context, key string) (string, error) {
	name := key
	if s.prefix != "" {
		name = s.prefix + "/" + key
	}

	s.mu.RLock()
	if v, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}

	s.mu.Lock()
	s.cache[name] = *out.SecretString
	s.mu.Unlock()

	return *out.SecretString, nil
}

// GetSecretMap fetches a secret whose value is a flat JSON object.
func (s *SecretsClient) GetSecretMap(ctx context.Context, key string) (map[string]string, error) {
	raw, err := s.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", key, err)
	}
	return m, nil
}

// ServiceSecrets holds the overrides found in Secrets Manager. Empty fields
// were absent or unreadable.
type ServiceSecrets struct {
	Database              map[string]string
	ShipStationProxyToken string
	JWTSecret             string
}

// LoadServiceSecrets reads every secret the service knows about. A missing
// secret is not an error; the caller keeps its environment value.
func (s *SecretsClient) LoadServiceSecrets(ctx context.Context) ServiceSecrets {
	var out ServiceSecrets
	if m, err := s.GetSecretMap(ctx, SecretDBCredentials); err == nil {
		out.Database = m
	}
	if v, err := s.GetSecret(ctx, SecretShipStationProxyToken); err == nil {
		out.ShipStationProxyToken = v
	}
	if v, err := s.GetSecret(ctx, SecretJWT); err == nil {
		out.JWTSecret = v
	}
	return out
}
