package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"carrier-service/cache"
	"carrier-service/database"
	awspkg "carrier-service/pkg/aws"
	"carrier-service/services"
	"carrier-service/storage"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the carrier service.
type Config struct {
	Port   string
	AppEnv string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL     string
	RateCacheTTL time.Duration

	// CarrierConfigBackend selects where carrier accounts live: postgres or dynamodb.
	CarrierConfigBackend string
	CarrierConfigTable   string

	// EventBackend selects the shipment event sink: sns, kafka, both or none.
	EventBackend        string
	ShippingSNSTopicARN string
	KafkaBrokers        []string
	KafkaTopic          string

	LabelBucket          string
	LabelURLTTL          time.Duration
	LabelRequestQueueURL string

	UPSBaseURL            string
	UPSTokenURL           string
	UPSRefreshURL         string
	CanadaPostBaseURL     string
	ShipStationProxyURL   string
	ShipStationProxyToken string
	CarrierTimeout        time.Duration

	JWTSecret      string
	AllowedOrigins []string
}

// PostgresConfig returns the database connection settings.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
		DBName:   c.PostgresDB,
		SSLMode:  c.PostgresSSLMode,
		TimeZone: c.PostgresTimeZone,
	}
}

// LoadConfig reads configuration from the environment (and .env when
// present) with optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8093"),
		AppEnv:                getEnv("APP_ENV", "development"),
		PostgresUser:          os.Getenv("POSTGRES_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:            os.Getenv("POSTGRES_DB"),
		PostgresHost:          os.Getenv("POSTGRES_HOST"),
		PostgresPort:          getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:       getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:      getEnv("POSTGRES_TIMEZONE", "UTC"),
		RedisURL:              os.Getenv("REDIS_URL"),
		RateCacheTTL:          getDuration("RATE_CACHE_TTL", cache.DefaultRateTTL),
		CarrierConfigBackend:  strings.ToLower(getEnv("CARRIER_CONFIG_BACKEND", "postgres")),
		CarrierConfigTable:    getEnv("CARRIER_CONFIG_TABLE", "carrier_configurations"),
		EventBackend:          strings.ToLower(getEnv("EVENT_BACKEND", "sns")),
		ShippingSNSTopicARN:   os.Getenv("SHIPPING_SNS_TOPIC_ARN"),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "shipment-events"),
		LabelBucket:           os.Getenv("LABEL_BUCKET"),
		LabelURLTTL:           getDuration("LABEL_URL_TTL", storage.DefaultURLTTL),
		LabelRequestQueueURL:  os.Getenv("LABEL_REQUEST_QUEUE_URL"),
		UPSBaseURL:            os.Getenv("UPS_BASE_URL"),
		UPSTokenURL:           os.Getenv("UPS_TOKEN_URL"),
		UPSRefreshURL:         os.Getenv("UPS_REFRESH_URL"),
		CanadaPostBaseURL:     os.Getenv("CANADA_POST_BASE_URL"),
		ShipStationProxyURL:   os.Getenv("SHIPSTATION_PROXY_URL"),
		ShipStationProxyToken: os.Getenv("SHIPSTATION_PROXY_TOKEN"),
		CarrierTimeout:        getDuration("CARRIER_TIMEOUT", services.DefaultCarrierTimeout),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		AllowedOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	// Override credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			applySecrets(context.Background(), cfg, awspkg.NewSecretsClient(awsCfg, secretsPrefix))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const secretsPrefix = "carrier-service"

// secretSource is satisfied by *awspkg.SecretsClient.
type secretSource interface {
	LoadServiceSecrets(ctx context.Context) awspkg.ServiceSecrets
}

func applySecrets(ctx context.Context, cfg *Config, sm secretSource) {
	secrets := sm.LoadServiceSecrets(ctx)
	overrideFrom(secrets.Database, "POSTGRES_USER", &cfg.PostgresUser)
	overrideFrom(secrets.Database, "POSTGRES_PASSWORD", &cfg.PostgresPassword)
	overrideFrom(secrets.Database, "POSTGRES_DB", &cfg.PostgresDB)
	overrideFrom(secrets.Database, "POSTGRES_HOST", &cfg.PostgresHost)
	overrideFrom(secrets.Database, "POSTGRES_PORT", &cfg.PostgresPort)
	if secrets.ShipStationProxyToken != "" {
		cfg.ShipStationProxyToken = secrets.ShipStationProxyToken
	}
	if secrets.JWTSecret != "" {
		cfg.JWTSecret = secrets.JWTSecret
	}
}

func overrideFrom(m map[string]string, key string, dst *string) {
	if v, ok := m[key]; ok && v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	switch c.CarrierConfigBackend {
	case "postgres", "dynamodb":
	default:
		return fmt.Errorf("unknown CARRIER_CONFIG_BACKEND %q", c.CarrierConfigBackend)
	}
	switch c.EventBackend {
	case "sns", "none":
	case "kafka", "both":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENT_BACKEND=kafka")
		}
	default:
		return fmt.Errorf("unknown EVENT_BACKEND %q", c.EventBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
