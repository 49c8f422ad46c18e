package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carrier-service/cache"
	"carrier-service/carriers"
	"carrier-service/consumer"
	"carrier-service/controllers"
	"carrier-service/database"
	"carrier-service/events"
	"carrier-service/logger"
	"carrier-service/metrics"
	"carrier-service/middleware"
	"carrier-service/models"
	awspkg "carrier-service/pkg/aws"
	"carrier-service/repository"
	"carrier-service/routes"
	"carrier-service/services"
	"carrier-service/storage"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const serviceName = "carrier-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// AWS clients
	awsCfg, awsErr := awspkg.LoadAWSConfig(ctx)

	var cwWriter io.Writer
	if awsErr == nil {
		if cw, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, serviceName); err == nil && cw.IsEnabled() {
			cwWriter = cw
		}
	}
	zapLogger, err := logger.New(cfg.AppEnv, cwWriter)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable, AWS integrations disabled", zap.Error(awsErr))
	}
	metrics.Register()

	autoMigrate := []interface{}{&models.Shipment{}}
	if cfg.CarrierConfigBackend == "postgres" {
		autoMigrate = append(autoMigrate, &models.CarrierConfiguration{})
	}
	db, err := database.ConnectPostgres(ctx, cfg.PostgresConfig(), zapLogger, autoMigrate...)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	configRepo, err := newCarrierConfigRepository(cfg, db, awsCfg, awsErr)
	if err != nil {
		zapLogger.Fatal("Failed to set up carrier configuration store", zap.Error(err))
	}
	shipmentRepo := repository.NewGormShipmentRepository(db)

	var rateCache services.RateCache
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("Redis unavailable, rate cache disabled", zap.Error(err))
		} else {
			defer rdb.Close() //nolint:errcheck
			rateCache = cache.NewRedisRateCache(rdb, cfg.RateCacheTTL)
		}
	}

	var metricsClient *awspkg.MetricsClient
	var labelStore services.LabelStore
	if awsErr == nil {
		metricsClient = awspkg.NewMetricsClient(awsCfg)
		if cfg.LabelBucket != "" {
			s3Client := awspkg.NewS3Client(awsCfg)
			labelStore = storage.NewS3LabelStore(s3Client, awspkg.NewS3PresignClient(s3Client), cfg.LabelBucket, cfg.LabelURLTTL)
		}
	}

	publisher := newPublisher(cfg, awsCfg, awsErr, zapLogger)
	if publisher != nil {
		defer publisher.Close() //nolint:errcheck
	}

	// Carrier adapters share one HTTP client and one UPS token manager.
	httpClient := &http.Client{Timeout: cfg.CarrierTimeout}
	upsTokens := carriers.NewUPSTokenManager(configRepo, cfg.UPSTokenURL, cfg.UPSRefreshURL, httpClient, zapLogger)
	carrierOpts := carriers.Options{
		HTTPClient:            httpClient,
		UPSBaseURL:            cfg.UPSBaseURL,
		CanadaPostBaseURL:     cfg.CanadaPostBaseURL,
		ShipStationProxyURL:   cfg.ShipStationProxyURL,
		ShipStationProxyToken: cfg.ShipStationProxyToken,
		UPSTokens:             upsTokens,
		Logger:                zapLogger,
	}

	shippingService := services.NewShippingService(services.ShippingDeps{
		Configs:   configRepo,
		Shipments: shipmentRepo,
		NewCarrier: func(c *models.CarrierConfiguration) (carriers.Carrier, error) {
			return carriers.New(c, carrierOpts)
		},
		Cache:          rateCache,
		Labels:         labelStore,
		Publisher:      publisher,
		Metrics:        metricsClient,
		CarrierTimeout: cfg.CarrierTimeout,
		Logger:         zapLogger,
	})

	if cfg.LabelRequestQueueURL != "" && awsErr == nil {
		queue := awspkg.NewSQSConsumer(awsCfg, cfg.LabelRequestQueueURL, zapLogger)
		go consumer.NewLabelRequestConsumer(queue, shippingService, metricsClient, zapLogger).Start(ctx)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(zapLogger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RateLimit(middleware.NewRateLimiter(ctx, rate.Limit(20), 40, 10*time.Minute)))
	r.Use(middleware.CloudWatchMetrics(metricsClient, serviceName))
	r.Use(middleware.RequestTimeout(30 * time.Second))

	routes.RegisterSystemRoutes(r, serviceName)
	routes.RegisterCarrierRoutes(r,
		controllers.NewCarrierController(shippingService),
		controllers.NewShippingController(shippingService),
		[]byte(cfg.JWTSecret),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Carrier service started",
		zap.String("port", cfg.Port),
		zap.String("carrier_config_backend", cfg.CarrierConfigBackend),
		zap.String("event_backend", cfg.EventBackend),
	)
	<-ctx.Done()
	zapLogger.Info("Shutting down carrier service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	zapLogger.Info("Server exited cleanly")
}

// newCarrierConfigRepository picks the store for carrier accounts. The UPS
// token manager writes refreshed tokens through the same store.
func newCarrierConfigRepository(cfg *Config, db *gorm.DB, awsCfg sdkaws.Config, awsErr error) (repository.CarrierConfigRepository, error) {
	if cfg.CarrierConfigBackend != "dynamodb" {
		return repository.NewGormCarrierConfigRepository(db), nil
	}
	if awsErr != nil {
		return nil, fmt.Errorf("dynamodb backend requires AWS config: %w", awsErr)
	}
	return repository.NewDynamoCarrierConfigRepository(awspkg.NewDynamoDBClient(awsCfg), cfg.CarrierConfigTable), nil
}

// newPublisher builds the shipment event sink. It returns nil when events
// are disabled or the chosen backend is unavailable.
func newPublisher(cfg *Config, awsCfg sdkaws.Config, awsErr error, logger *zap.Logger) events.Publisher {
	var sinks events.Multi

	if cfg.EventBackend == "sns" || cfg.EventBackend == "both" {
		switch {
		case awsErr != nil:
			logger.Warn("AWS config unavailable, SNS events disabled")
		case cfg.ShippingSNSTopicARN == "":
			logger.Warn("SHIPPING_SNS_TOPIC_ARN not set, SNS events disabled")
		default:
			sinks = append(sinks, events.NewSNSPublisher(awspkg.NewSNSClient(awsCfg), cfg.ShippingSNSTopicARN))
		}
	}
	if cfg.EventBackend == "kafka" || cfg.EventBackend == "both" {
		sinks = append(sinks, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
	}

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}
