package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/slotbook/pkg/circuitbreaker"
	"github.com/jwalitptl/slotbook/pkg/messaging"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "://nope"})
	assert.Error(t, err)
}

func TestPublishDeliversJSON(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "bookings")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	broker := NewRedisBroker(client, zerolog.Nop())
	sent := messaging.Message{
		Type:      "booking.created",
		UserID:    "user-1",
		Data:      map[string]interface{}{"bookingId": "bk-1"},
		Timestamp: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, broker.Publish(ctx, "bookings", sent))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "bookings", msg.Channel)
		var got messaging.Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "booking.created", got.Type)
		assert.Equal(t, "user-1", got.UserID)
		assert.True(t, sent.Timestamp.Equal(got.Timestamp))
		assert.Equal(t, map[string]interface{}{"bookingId": "bk-1"}, got.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
	assert.NoError(t, broker.Close())
}

func TestPublishRejectsUnencodable(t *testing.T) {
	client, _ := newTestClient(t)
	broker := NewRedisBroker(client, zerolog.Nop())

	err := broker.Publish(context.Background(), "bookings", make(chan int))
	assert.ErrorContains(t, err, "failed to marshal message")
}

func TestPublishOpensBreaker(t *testing.T) {
	client, mr := newTestClient(t)
	broker := NewRedisBroker(client, zerolog.Nop())
	ctx := context.Background()

	mr.SetError("ERR server unavailable")
	for i := 0; i < 5; i++ {
		err := broker.Publish(ctx, "bookings", messaging.Message{Type: "booking.created"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}

	mr.SetError("")
	err := broker.Publish(ctx, "bookings", messaging.Message{Type: "booking.created"})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, circuitbreaker.StateOpen, broker.(*RedisBroker).cb.State())
}
