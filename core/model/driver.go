package model

// DriverOp identifies a driver capability from the closed operation table.
type DriverOp string

const (
	OpSendCommand       DriverOp = "send_command"
	OpSendLandingSignal DriverOp = "send_landing_signal"
	OpSendTakeoffSignal DriverOp = "send_takeoff_signal"
)

// Driver executes operations against groups of UAVs it owns. A capability
// call returns one outcome per targeted UAV id: true for synchronous success,
// a receipt object for an asynchronously tracked command, or any other value
// whose string form becomes the failure reason.
//
// A call may also fail as a whole: ErrNotSupported and ErrNotImplemented mark
// the entire group accordingly, any other error is reported as an unexpected
// fault for every UAV in the group.
type Driver interface {
	// Supports reports whether the driver implements the given operation.
	Supports(op DriverOp) bool

	SendCommand(uavs []*UAV, params map[string]any) (map[string]any, error)
	SendLandingSignal(uavs []*UAV, params map[string]any) (map[string]any, error)
	SendTakeoffSignal(uavs []*UAV, params map[string]any) (map[string]any, error)
}
