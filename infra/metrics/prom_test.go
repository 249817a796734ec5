package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/flocklink/fleetd/core/metrics"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordMessage(coremetrics.MessageEvent{
		Type:     "UAV-LIST",
		Duration: 2 * time.Millisecond,
	}))
	require.NoError(t, sink.RecordCommand(coremetrics.CommandEvent{State: "finished"}))
	require.NoError(t, sink.RecordFleet(coremetrics.FleetEvent{UAVs: 3, Clients: 2}))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["fleetd_messages_total"])
	require.True(t, names["fleetd_command_receipts_total"])
	require.True(t, names["fleetd_uavs"])
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	// Registering again reuses the existing collectors.
	_, err = NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
}
