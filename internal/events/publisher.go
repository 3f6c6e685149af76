// Package events publishes accepted changes to downstream consumers once
// their block has committed.
package events

import (
	"context"
	"errors"

	evbus "github.com/asaskevich/EventBus"

	"github.com/rpattn/entityindexer/internal/domain"
)

// TopicEntityChanged is the in-process bus topic carrying domain.ChangeEvent values.
const TopicEntityChanged = "entity:changed"

// Publisher delivers the change events of one committed block.
type Publisher interface {
	Publish(ctx context.Context, events []domain.ChangeEvent) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(ctx context.Context, events []domain.ChangeEvent) error { return nil }

// Multi fans events out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events []domain.ChangeEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BusPublisher publishes to an in-process event bus. Handlers subscribed to
// TopicEntityChanged receive one domain.ChangeEvent per call.
type BusPublisher struct {
	bus evbus.Bus
}

// NewBusPublisher wraps bus; a nil bus creates a new one.
func NewBusPublisher(bus evbus.Bus) *BusPublisher {
	if bus == nil {
		bus = evbus.New()
	}
	return &BusPublisher{bus: bus}
}

// Bus exposes the underlying bus for subscribers.
func (p *BusPublisher) Bus() evbus.Bus {
	return p.bus
}

func (p *BusPublisher) Publish(ctx context.Context, events []domain.ChangeEvent) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.bus.Publish(TopicEntityChanged, event)
	}
	return nil
}
