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
	Source        = "campusloans.loans"
	SchemaVersion = "1.0"
)

var errMissingLoan = errors.New("loan event payload has no loan")

// KafkaPublisher writes loan lifecycle events keyed by device id, so every
// event for one device lands on the same partition in order.
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

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload model.LoanEventPayload) error {
	if payload.Loan == nil {
		return errMissingLoan
	}

	eventID := uuid.NewString()
	envelope := model.EventEnvelope{
		ID:          eventID,
		EventType:   eventType,
		Subject:     "loans/" + payload.Loan.ID,
		EventTime:   p.now(),
		DataVersion: SchemaVersion,
		Data:        payload,
	}

	msg, err := kafka.NewMessage().
		WithKey(payload.Loan.DeviceID).
		WithValue(envelope).
		WithEventID(eventID).
		WithEventType(eventType).
		WithCorrelationID(payload.Loan.ID).
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

	p.log.Debug("Loan event published",
		"event_type", eventType,
		"event_id", eventID,
		"loan_id", payload.Loan.ID,
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

func (p *LogPublisher) Publish(_ context.Context, eventType string, payload model.LoanEventPayload) error {
	if payload.Loan == nil {
		return errMissingLoan
	}
	p.log.Info("Loan event",
		"event_type", eventType,
		"loan_id", payload.Loan.ID,
		"device_id", payload.Loan.DeviceID,
		"status", payload.Loan.Status,
		"reason", payload.Reason,
	)
	return nil
}
