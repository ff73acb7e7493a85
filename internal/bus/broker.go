package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

func RestaurantTopic(restaurantID string) string { return "restaurant:" + restaurantID }

func TableTopic(tableID string) string { return "table:" + tableID }

type Message struct {
	Topic     string          `json:"topic"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// NewMessage marshals payload once so every subscriber shares the same bytes.
func NewMessage(topic, event string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Message{Topic: topic, Event: event, Payload: raw, EmittedAt: time.Now().UTC()}, nil
}

// Publisher hands a message to whatever is listening right now. Delivery is at-most-once.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Broker fans messages out to in-process subscribers of a topic.
type Broker struct {
	mu         sync.RWMutex
	clients    map[string][]chan Message
	bufferSize int
	dropped    func(Message)
}

func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &Broker{
		clients:    make(map[string][]chan Message),
		bufferSize: bufferSize,
	}
}

// OnDrop registers a callback for messages skipped because a subscriber was full.
func (b *Broker) OnDrop(fn func(Message)) {
	b.mu.Lock()
	b.dropped = fn
	b.mu.Unlock()
}

// Subscribe attaches to topic until ctx is done, after which the channel is closed.
func (b *Broker) Subscribe(ctx context.Context, topic string) <-chan Message {
	ch := make(chan Message, b.bufferSize)

	b.mu.Lock()
	b.clients[topic] = append(b.clients[topic], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(topic, ch)
	}()

	return ch
}

func (b *Broker) Publish(_ context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.clients[msg.Topic] {
		select {
		case ch <- msg:
		default:
			if b.dropped != nil {
				b.dropped(msg)
			}
		}
	}
	return nil
}

func (b *Broker) remove(topic string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients := b.clients[topic]
	for i, c := range clients {
		if c == ch {
			b.clients[topic] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.clients[topic]) == 0 {
		delete(b.clients, topic)
	}
}

func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[topic])
}
