package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"campusloans/pkg/kafka"
	"campusloans/pkg/logger"
	"campusloans/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProducer struct {
	publishFn func(ctx context.Context, msg kafka.Message) error
	sent      []kafka.Message
}

func (m *mockProducer) Publish(ctx context.Context, msg kafka.Message) error {
	m.sent = append(m.sent, msg)
	if m.publishFn != nil {
		return m.publishFn(ctx, msg)
	}
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := &mockProducer{}
	p := NewKafkaPublisher(producer, logger.Discard())
	fixed := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	d := &model.Device{ID: "d1", Brand: "Apple", Model: "iPad", Category: "Tablet", AvailableCount: 2, MaxDeviceCount: 4}
	require.NoError(t, p.Publish(context.Background(), model.EventDeviceUpdated, d))
	require.Len(t, producer.sent, 1)

	msg := producer.sent[0]
	assert.Equal(t, "d1", msg.Key)
	assert.Equal(t, model.EventDeviceUpdated, msg.GetEventType())
	assert.NotEmpty(t, msg.GetEventID())

	var envelope struct {
		ID        string                   `json:"id"`
		EventType string                   `json:"eventType"`
		Subject   string                   `json:"subject"`
		EventTime time.Time                `json:"eventTime"`
		Data      model.DeviceEventPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, msg.GetEventID(), envelope.ID)
	assert.Equal(t, "devices/d1", envelope.Subject)
	assert.True(t, fixed.Equal(envelope.EventTime))
	assert.Equal(t, 2, envelope.Data.AvailableCount)
	assert.Equal(t, 4, envelope.Data.MaxDeviceCount)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	producer := &mockProducer{
		publishFn: func(context.Context, kafka.Message) error { return errors.New("broker down") },
	}
	p := NewKafkaPublisher(producer, logger.Discard())

	assert.Error(t, p.Publish(context.Background(), model.EventDeviceCreated, &model.Device{ID: "d1"}))
	assert.Error(t, p.Publish(context.Background(), model.EventDeviceCreated, nil))
}
