package metrics

import (
	"context"
	"time"

	"github.com/flocklink/fleetd/core/events"
	coremetrics "github.com/flocklink/fleetd/core/metrics"
	"github.com/flocklink/fleetd/infra/logger"
	"github.com/flocklink/fleetd/internal/eventbus"
)

// Collector consumes server events from the event bus and records them in a
// metrics sink. Delivery on the bus is best effort; metrics may miss events
// under backpressure but never block the hot path.
type Collector struct {
	bus  eventbus.EventBus
	sink coremetrics.Sink
	log  logger.Logger
}

// NewCollector creates a Collector bridging bus to sink.
func NewCollector(bus eventbus.EventBus, sink coremetrics.Sink, log logger.Logger) *Collector {
	return &Collector{bus: bus, sink: sink, log: log}
}

// Run consumes events until the context is cancelled or the bus closes.
func (c *Collector) Run(ctx context.Context) {
	ch := c.bus.Subscribe()
	defer c.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.record(ev)
		}
	}
}

func (c *Collector) record(ev eventbus.Event) {
	var err error
	switch e := ev.(type) {
	case events.MessageHandled:
		err = c.sink.RecordMessage(coremetrics.MessageEvent{
			Type:     e.Type,
			ClientID: e.ClientID,
			Duration: e.Duration,
			Time:     time.Now(),
		})
	case events.CommandFinished:
		err = c.sink.RecordCommand(coremetrics.CommandEvent{
			ReceiptID: e.ReceiptID,
			State:     "finished",
			Age:       e.Age,
			Clients:   e.Clients,
			Time:      time.Now(),
		})
	case events.CommandTimedOut:
		err = c.sink.RecordCommand(coremetrics.CommandEvent{
			State:   "timedOut",
			Clients: 1,
			Time:    time.Now(),
		})
	}
	if err != nil {
		c.log.Warnf("metrics record failed: %v", err)
	}
}
