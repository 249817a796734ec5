package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/flocklink/fleetd/core/metrics"
)

// PromSink records server events in Prometheus metrics.
type PromSink struct {
	messages *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	commands *prometheus.CounterVec
	uavs     prometheus.Gauge
	clients  prometheus.Gauge
}

// NewPromSink registers the server metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetd_messages_total",
		Help: "Total number of protocol messages handled",
	}, []string{"type"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetd_message_duration_seconds",
		Help:    "Time spent handling a protocol message",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetd_command_receipts_total",
		Help: "Command receipts by terminal state",
	}, []string{"state"})
	uavs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetd_uavs",
		Help: "Number of UAVs currently registered",
	})
	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetd_clients",
		Help: "Number of clients currently connected",
	})

	if err := reg.Register(messages); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			messages = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(commands); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			commands = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(uavs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			uavs = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(clients); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			clients = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		messages: messages,
		latency:  latency,
		commands: commands,
		uavs:     uavs,
		clients:  clients,
	}, nil
}

func (s *PromSink) RecordMessage(ev coremetrics.MessageEvent) error {
	s.messages.WithLabelValues(ev.Type).Inc()
	s.latency.WithLabelValues(ev.Type).Observe(ev.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.State).Inc()
	return nil
}

func (s *PromSink) RecordFleet(ev coremetrics.FleetEvent) error {
	s.uavs.Set(float64(ev.UAVs))
	s.clients.Set(float64(ev.Clients))
	return nil
}
