package bus

import (
	"context"
	"io"
	"testing"
	"time"

	"ms-tableside/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestRedisRelayDeliversToLocalBroker(t *testing.T) {
	client := setupTestRedis(t)
	broker := NewBroker(4)
	relay := NewRedisRelay(client, "tableside:events", broker, logger.NewWithWriter(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := broker.Subscribe(ctx, TableTopic("t1"))

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay never subscribed")
	}

	msg, err := NewMessage(TableTopic("t1"), "table_session_revoked", map[string]string{"tableId": "t1"})
	require.NoError(t, err)
	require.NoError(t, relay.Publish(ctx, msg))

	select {
	case got := <-sub:
		assert.Equal(t, "table_session_revoked", got.Event)
		assert.Equal(t, TableTopic("t1"), got.Topic)
		assert.JSONEq(t, `{"tableId":"t1"}`, string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message not relayed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRedisRelayPublishFailsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	relay := NewRedisRelay(client, "tableside:events", NewBroker(1), logger.NewWithWriter(io.Discard))
	err = relay.Publish(context.Background(), Message{Topic: "table:t1", Event: "x"})
	assert.Error(t, err)
}
