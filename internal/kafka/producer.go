package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-tableside/internal/bus"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
}

// NewProducer keys messages by bus topic so one table's events stay on one partition.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{Writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *Producer) Publish(ctx context.Context, msg bus.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal bus message: %w", err)
	}
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Topic),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(msg.Event)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", msg.Event, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
