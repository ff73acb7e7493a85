package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-tableside/internal/bus"
	"ms-tableside/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	local  bus.Publisher
	logger *logger.Logger
}

// NewConsumer reads from the latest offset: subscribers only care about live events.
// Each instance must use its own groupID so that every instance sees every message.
func NewConsumer(brokers []string, topic, groupID string, local bus.Publisher, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{reader: reader, local: local, logger: log}
}

func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("KAFKA", fmt.Sprintf("Consumer started on %s", c.reader.Config().Topic))
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		c.deliver(ctx, m)
	}
}

func (c *Consumer) deliver(ctx context.Context, m kafka.Message) {
	var msg bus.Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message at offset %d: %v", m.Offset, err))
		return
	}
	if err := c.local.Publish(ctx, msg); err != nil {
		c.logger.Error("KAFKA", fmt.Sprintf("Local delivery of %s failed: %v", msg.Event, err))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
