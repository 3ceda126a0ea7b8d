package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishKeysByChannel(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var body map[string]string
		if err := json.Unmarshal(val, &body); err != nil {
			return err
		}
		if body["status"] != "CONFIRMED" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := newProducer(mock, "booking-updates")
	err := p.Publish(context.Background(), "booking_updates:u1", map[string]string{"status": "CONFIRMED"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublishSurfacesSendError(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newProducer(mock, "booking-updates")
	err := p.Publish(context.Background(), "booking_updates:u1", map[string]string{})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newProducer(mock, "t").Publish(ctx, "c", nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.Close())
}

func TestNewProducerValidatesConfig(t *testing.T) {
	_, err := NewProducer(nil, "t", nil)
	assert.Error(t, err)
	_, err = NewProducer([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
}
