package model

// ConnectionState describes the lifecycle of a managed external connection.
type ConnectionState string

const (
	ConnectionDisconnected  ConnectionState = "disconnected"
	ConnectionConnecting    ConnectionState = "connecting"
	ConnectionConnected     ConnectionState = "connected"
	ConnectionDisconnecting ConnectionState = "disconnecting"
)

// ConnectionEntry describes a connection to an external data source that the
// server maintains, e.g. a GPS feed or a radio link.
type ConnectionEntry struct {
	ID      string
	Purpose string
	State   ConnectionState
}

// View returns the wire representation used in CONN-INF messages.
func (c ConnectionEntry) View() map[string]any {
	return map[string]any{
		"id":      c.ID,
		"purpose": c.Purpose,
		"state":   string(c.State),
	}
}
