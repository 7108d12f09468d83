package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusloans/pkg/kafka"
	"campusloans/pkg/logger"
	"campusloans/pkg/model"

	"github.com/google/uuid"
)

const (
	Source        = "campusloans.devices"
	SchemaVersion = "1.0"
)

var errMissingDevice = errors.New("device event has no device")

// KafkaPublisher writes Device.* events keyed by device id, so the loan
// service applies updates for one device in order.
type KafkaPublisher struct {
	producer kafka.Publisher
	log      *logger.Logger
	now      func() time.Time
}

func NewKafkaPublisher(producer kafka.Publisher, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, d *model.Device) error {
	if d == nil || d.ID == "" {
		return errMissingDevice
	}

	eventID := uuid.NewString()
	envelope := model.EventEnvelope{
		ID:          eventID,
		EventType:   eventType,
		Subject:     "devices/" + d.ID,
		EventTime:   p.now(),
		DataVersion: SchemaVersion,
		Data:        model.NewDeviceEventPayload(d),
	}

	msg, err := kafka.NewMessage().
		WithKey(d.ID).
		WithValue(envelope).
		WithEventID(eventID).
		WithEventType(eventType).
		WithCorrelationID(d.ID).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithTimestamp(envelope.EventTime).
		BuildE()
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.log.Debug("Device event published",
		"event_type", eventType,
		"event_id", eventID,
		"device_id", d.ID,
	)
	return nil
}

// LogPublisher stands in for Kafka when the broker is disabled.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, eventType string, d *model.Device) error {
	if d == nil || d.ID == "" {
		return errMissingDevice
	}
	p.log.Info("Device event",
		"event_type", eventType,
		"device_id", d.ID,
		"available_count", d.AvailableCount,
		"max_device_count", d.MaxDeviceCount,
	)
	return nil
}
