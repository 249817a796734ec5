package metrics

import (
	"errors"

	coremetrics "github.com/flocklink/fleetd/core/metrics"
)

// MultiSink fans events out to several sinks, collecting their errors.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink over the given sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordMessage(ev coremetrics.MessageEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordMessage(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordCommand(ev coremetrics.CommandEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordCommand(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordFleet(ev coremetrics.FleetEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordFleet(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
