package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMessage(t *testing.T, topic, event string, payload any) Message {
	t.Helper()
	msg, err := NewMessage(topic, event, payload)
	require.NoError(t, err)
	return msg
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "restaurant:r1", RestaurantTopic("r1"))
	assert.Equal(t, "table:t1", TableTopic("t1"))
}

func TestPublishReachesOnlyTopicSubscribers(t *testing.T) {
	b := NewBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tableCh := b.Subscribe(ctx, TableTopic("t1"))
	otherCh := b.Subscribe(ctx, TableTopic("t2"))

	require.NoError(t, b.Publish(ctx, mustMessage(t, TableTopic("t1"), "order_created", map[string]string{"id": "o1"})))

	select {
	case msg := <-tableCh:
		assert.Equal(t, "order_created", msg.Event)
		assert.JSONEq(t, `{"id":"o1"}`, string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}

	select {
	case msg := <-otherCh:
		t.Fatalf("unexpected delivery to other topic: %+v", msg)
	default:
	}
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	b := NewBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, b.Publish(ctx, mustMessage(t, "table:t1", "payment_processed", nil)))

	ch := b.Subscribe(ctx, "table:t1")
	select {
	case msg := <-ch:
		t.Fatalf("late subscriber received %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dropped int
	b.OnDrop(func(Message) { dropped++ })
	ch := b.Subscribe(ctx, "restaurant:r1")

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, mustMessage(t, "restaurant:r1", "new_order", i)))
	}

	assert.Len(t, ch, 1)
	assert.Equal(t, 2, dropped)
}

func TestUnsubscribeOnContextDone(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, "table:t1")
	assert.Equal(t, 1, b.SubscriberCount("table:t1"))

	cancel()
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
	assert.Eventually(t, func() bool { return b.SubscriberCount("table:t1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroker(2)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		ctx, cancel := context.WithCancel(context.Background())
		ch := b.Subscribe(ctx, "table:t1")
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			_ = b.Publish(context.Background(), Message{Topic: "table:t1", Event: "x"})
			cancel()
		}()
	}
	wg.Wait()
}
