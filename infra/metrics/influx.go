package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/flocklink/fleetd/core/metrics"
	"github.com/flocklink/fleetd/infra/logger"
)

// InfluxSink writes server events to an InfluxDB instance using the official
// client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails so the server keeps running without metrics.
func NewInfluxSinkWithFallback(cfg coremetrics.Config, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health == nil {
		log.Warnf("influxdb health check failed, falling back to nop sink: %v", err)
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) RecordMessage(ev coremetrics.MessageEvent) error {
	p := influxdb2.NewPoint("message",
		map[string]string{"type": ev.Type, "client": ev.ClientID},
		map[string]any{"duration_ms": ev.Duration.Milliseconds()},
		eventTime(ev.Time))
	return s.write(p)
}

func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	p := influxdb2.NewPoint("command",
		map[string]string{"state": ev.State},
		map[string]any{"age_ms": ev.Age.Milliseconds(), "clients": ev.Clients},
		eventTime(ev.Time))
	return s.write(p)
}

func (s *InfluxSink) RecordFleet(ev coremetrics.FleetEvent) error {
	p := influxdb2.NewPoint("fleet",
		nil,
		map[string]any{"uavs": ev.UAVs, "clients": ev.Clients},
		eventTime(ev.Time))
	return s.write(p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.log.Warnf("influx write failed: %v", err)
		return err
	}
	return nil
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
