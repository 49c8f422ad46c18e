package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"carrier-service/events"
	"carrier-service/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	topic      string
	message    []byte
	attributes map[string]string
	err        error
}

func (m *mockSNS) Publish(_ context.Context, topicArn string, message []byte, attributes map[string]string) error {
	m.topic, m.message, m.attributes = topicArn, message, attributes
	return m.err
}

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.msgs = append(m.msgs, msgs...)
	return m.err
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func shipmentCreated() events.Event {
	return events.Event{
		Type: models.EventShipmentCreated,
		Key:  "5f0c3c1e-6a43-4a4e-9d8e-0d5c6c1d2e3f",
		Payload: models.ShipmentCreatedEvent{
			EventType:      models.EventShipmentCreated,
			ShipmentID:     "5f0c3c1e-6a43-4a4e-9d8e-0d5c6c1d2e3f",
			Carrier:        models.CarrierUPS,
			TrackingNumber: "1Z999AA10123456784",
		},
	}
}

func TestSNSPublisher(t *testing.T) {
	sns := &mockSNS{}
	p := events.NewSNSPublisher(sns, "arn:aws:sns:ca-central-1:000000000000:shipping")

	require.NoError(t, p.Publish(context.Background(), shipmentCreated()))
	assert.Equal(t, "arn:aws:sns:ca-central-1:000000000000:shipping", sns.topic)
	assert.Equal(t, models.EventShipmentCreated, sns.attributes["event_type"])

	var decoded models.ShipmentCreatedEvent
	require.NoError(t, json.Unmarshal(sns.message, &decoded))
	assert.Equal(t, "1Z999AA10123456784", decoded.TrackingNumber)
}

func TestKafkaPublisher(t *testing.T) {
	w := &mockWriter{}
	p := events.NewKafkaPublisherWithWriter(w)

	require.NoError(t, p.Publish(context.Background(), shipmentCreated()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "5f0c3c1e-6a43-4a4e-9d8e-0d5c6c1d2e3f", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, models.EventShipmentCreated, string(w.msgs[0].Headers[0].Value))

	w.err = errors.New("broker unavailable")
	assert.ErrorContains(t, p.Publish(context.Background(), shipmentCreated()), "broker unavailable")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestMulti_JoinsErrors(t *testing.T) {
	sns := &mockSNS{err: errors.New("sns down")}
	w := &mockWriter{}
	m := events.Multi{events.NewSNSPublisher(sns, "arn"), events.NewKafkaPublisherWithWriter(w)}

	err := m.Publish(context.Background(), shipmentCreated())
	assert.ErrorContains(t, err, "sns down")
	assert.Len(t, w.msgs, 1)
}
