package registry

import "github.com/flocklink/fleetd/core/model"

// ClientRegistry tracks the clients currently connected to the server.
type ClientRegistry = Registry[*model.Client]

// NewClientRegistry creates an empty client registry.
func NewClientRegistry() *ClientRegistry { return NewRegistry[*model.Client]("client") }

// UAVRegistry tracks the UAVs known to the server.
type UAVRegistry = Registry[*model.UAV]

// NewUAVRegistry creates an empty UAV registry.
func NewUAVRegistry() *UAVRegistry { return NewRegistry[*model.UAV]("UAV") }

// ClockRegistry tracks the clocks managed by the server.
type ClockRegistry = Registry[model.Clock]

// NewClockRegistry creates an empty clock registry.
func NewClockRegistry() *ClockRegistry { return NewRegistry[model.Clock]("clock") }

// ConnectionRegistry tracks the server's connections to external data
// sources.
type ConnectionRegistry = Registry[model.ConnectionEntry]

// NewConnectionRegistry creates an empty connection registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return NewRegistry[model.ConnectionEntry]("connection")
}
