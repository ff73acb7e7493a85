package notify

import (
	"context"
	"fmt"

	"ms-tableside/internal/bus"
	"ms-tableside/internal/logger"
)

// Dispatcher turns domain events into bus messages. Publish failures are logged,
// never returned: the state change they describe has already been committed.
type Dispatcher struct {
	Bus    bus.Publisher
	Logger *logger.Logger
}

func NewDispatcher(publisher bus.Publisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{Bus: publisher, Logger: log}
}

// Route is the pure translation step of Dispatch.
func Route(ev Event) ([]bus.Message, error) {
	routes := ev.routes()
	msgs := make([]bus.Message, 0, len(routes))
	for _, r := range routes {
		msg, err := bus.NewMessage(r.topic, r.event, r.payload)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if d == nil || d.Bus == nil {
		return
	}
	msgs, err := Route(ev)
	if err != nil {
		d.Logger.Error("BUS", fmt.Sprintf("Failed to build %T messages: %v", ev, err))
		return
	}
	for _, msg := range msgs {
		if err := d.Bus.Publish(ctx, msg); err != nil {
			d.Logger.Error("BUS", fmt.Sprintf("Publish %s to %s failed: %v", msg.Event, msg.Topic, err))
			continue
		}
		d.Logger.LogBus("PUBLISH", msg.Topic, msg.Event)
	}
}
