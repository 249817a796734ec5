// Package eventbus provides the in-process fan-out bus that carries
// monitoring events from the server core to the metrics collector and
// other observers. Delivery is best effort: slow subscribers drop
// events rather than stall the publisher.
package eventbus

// Event is anything that can travel on the bus; the concrete event
// types live in core/events.
type Event = any

// EventBus is the publish side plus subscription management, as consumed
// by the metrics collector.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the untyped bus used for the server's mixed event stream. It is
// a TypedBus carrying Event values; components that only ever see one
// event type should use TypedBus directly.
type Bus struct {
	TypedBus[Event]
}

// New returns a ready-to-use Bus.
func New() *Bus { return &Bus{} }

var _ EventBus = (*Bus)(nil)
