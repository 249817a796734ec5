package metrics

import "time"

// MessageEvent describes one handled protocol message.
type MessageEvent struct {
	Type     string
	ClientID string
	Duration time.Duration
	Time     time.Time
}

// CommandEvent describes a command receipt reaching a terminal state.
type CommandEvent struct {
	ReceiptID string
	State     string
	Age       time.Duration
	Clients   int
	Time      time.Time
}

// FleetEvent is a snapshot of the registry sizes.
type FleetEvent struct {
	UAVs    int
	Clients int
	Time    time.Time
}

// Sink records server events for observability purposes.
type Sink interface {
	RecordMessage(ev MessageEvent) error
	RecordCommand(ev CommandEvent) error
	RecordFleet(ev FleetEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordMessage(MessageEvent) error { return nil }
func (NopSink) RecordCommand(CommandEvent) error { return nil }
func (NopSink) RecordFleet(FleetEvent) error     { return nil }
