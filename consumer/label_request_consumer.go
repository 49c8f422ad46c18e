package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"carrier-service/models"
	awspkg "carrier-service/pkg/aws"
	"carrier-service/services"

	"go.uber.org/zap"
)

// ErrRetryable marks a label request that failed for a transient reason. The
// message stays on the queue and is redelivered after the visibility timeout.
var ErrRetryable = errors.New("label request failed, will retry")

// LabelRequestConsumer turns queued label requests into shipments.
type LabelRequestConsumer struct {
	queue   *awspkg.SQSConsumer
	service services.ShippingService
	metrics *awspkg.MetricsClient
	logger  *zap.Logger
}

func NewLabelRequestConsumer(queue *awspkg.SQSConsumer, svc services.ShippingService, metricsClient *awspkg.MetricsClient, logger *zap.Logger) *LabelRequestConsumer {
	return &LabelRequestConsumer{queue: queue, service: svc, metrics: metricsClient, logger: logger}
}

// Start polls until ctx is cancelled.
func (c *LabelRequestConsumer) Start(ctx context.Context) {
	c.logger.Info("Label request consumer started")
	if err := c.queue.StartPolling(ctx, c.Handle); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Label request consumer stopped", zap.Error(err))
		return
	}
	c.logger.Info("Label request consumer shutting down")
}

// snsEnvelope unwraps the SNS → SQS message wrapper
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// Handle processes one message body. A nil return deletes the message:
// unparseable or rejected requests are dropped, transient failures are kept.
func (c *LabelRequestConsumer) Handle(ctx context.Context, body string) error {
	raw := []byte(body)

	var envelope snsEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Type == "Notification" && envelope.Message != "" {
		raw = []byte(envelope.Message)
	}

	var req models.LabelRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Error("Failed to unmarshal label request", zap.Error(err))
		return nil
	}
	if req.UserID == "" || req.Carrier == "" || req.ServiceCode == "" {
		c.logger.Error("Label request missing required fields",
			zap.String("user_id", req.UserID),
			zap.String("carrier", req.Carrier),
		)
		return nil
	}

	shipment, svcErr := c.service.CreateShipment(ctx, req.UserID, req.Carrier, &models.CreateShipmentRequest{
		ServiceCode: req.ServiceCode,
		Details:     req.Details,
	})
	if svcErr != nil {
		_ = c.metrics.RecordCount(ctx, awspkg.MetricLabelRequests, map[string]string{"Carrier": req.Carrier, "Outcome": "error"})
		if svcErr.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", ErrRetryable, svcErr.Message)
		}
		c.logger.Warn("Label request rejected",
			zap.String("user_id", req.UserID),
			zap.String("carrier", req.Carrier),
			zap.Int("status", svcErr.StatusCode),
			zap.String("error", svcErr.Message),
		)
		return nil
	}

	_ = c.metrics.RecordCount(ctx, awspkg.MetricLabelRequests, map[string]string{"Carrier": req.Carrier, "Outcome": "success"})
	c.logger.Info("Label request fulfilled",
		zap.String("carrier", req.Carrier),
		zap.String("shipment_id", shipment.ID.String()),
		zap.String("tracking_number", shipment.TrackingNumber),
	)
	return nil
}
