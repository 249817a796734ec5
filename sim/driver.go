package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/flocklink/fleetd/core/command"
	"github.com/flocklink/fleetd/core/logger"
	"github.com/flocklink/fleetd/core/model"
)

// yoResponses are the possible replies to the "yo" test command.
var yoResponses = []string{"yo!", "yo?", "yo."}

// Driver is the virtual UAV driver. It supports every operation of the
// capability table: landing and takeoff signals resolve synchronously,
// free-form commands resolve asynchronously through receipts.
//
// Two commands are understood: "yo" replies after a short random delay and
// "timeout" registers a receipt that never finishes, which exercises the
// timeout and cancellation machinery of the command execution manager.
type Driver struct {
	commands *command.Manager
	delay    time.Duration
	log      logger.Logger

	mu   sync.Mutex
	uavs map[string]*virtualUAV
}

// NewDriver creates a Driver resolving asynchronous commands through the
// given manager with the given mean delay.
func NewDriver(commands *command.Manager, delay time.Duration, log logger.Logger) *Driver {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Driver{
		commands: commands,
		delay:    delay,
		log:      log,
		uavs:     make(map[string]*virtualUAV),
	}
}

// Supports reports true for every operation in the capability table.
func (d *Driver) Supports(model.DriverOp) bool { return true }

// createUAV creates and tracks a virtual UAV homed at the given position.
func (d *Driver) createUAV(id string, home model.GPSCoordinate, radius float64) *model.UAV {
	v := newVirtualUAV(id, home, radius)
	d.mu.Lock()
	d.uavs[id] = v
	d.mu.Unlock()
	return model.NewUAV(id, d, model.UAVStatus{ID: id, Position: home, Battery: v.battery})
}

func (d *Driver) virtual(id string) (*virtualUAV, bool) {
	d.mu.Lock()
	v, ok := d.uavs[id]
	d.mu.Unlock()
	return v, ok
}

// SendCommand starts the named command on every targeted UAV and hands back
// one receipt per UAV. Unknown commands fail immediately.
func (d *Driver) SendCommand(uavs []*model.UAV, params map[string]any) (map[string]any, error) {
	name, _ := params["command"].(string)
	results := make(map[string]any, len(uavs))
	for _, u := range uavs {
		switch name {
		case "yo":
			r := d.commands.NewReceipt(0)
			go d.finishYo(r.ID)
			results[u.ID] = r
		case "timeout":
			// registered but never finished, the sweep will expire it
			results[u.ID] = d.commands.NewReceipt(0)
		default:
			results[u.ID] = fmt.Sprintf("Unknown command: %s", name)
		}
	}
	return results, nil
}

func (d *Driver) finishYo(receiptID string) {
	// jitter around the configured mean
	delay := time.Duration(float64(d.delay) * (0.5 + rand.Float64()))
	time.Sleep(delay)
	d.commands.Finish(receiptID, yoResponses[rand.Intn(len(yoResponses))])
}

// SendLandingSignal lands the targeted UAVs synchronously.
func (d *Driver) SendLandingSignal(uavs []*model.UAV, _ map[string]any) (map[string]any, error) {
	results := make(map[string]any, len(uavs))
	for _, u := range uavs {
		v, ok := d.virtual(u.ID)
		switch {
		case !ok:
			results[u.ID] = "Not a virtual UAV"
		case v.land():
			results[u.ID] = true
		default:
			results[u.ID] = "Already on the ground"
		}
	}
	return results, nil
}

// SendTakeoffSignal lifts the targeted UAVs synchronously.
func (d *Driver) SendTakeoffSignal(uavs []*model.UAV, _ map[string]any) (map[string]any, error) {
	results := make(map[string]any, len(uavs))
	for _, u := range uavs {
		v, ok := d.virtual(u.ID)
		switch {
		case !ok:
			results[u.ID] = "Not a virtual UAV"
		case v.takeOff():
			results[u.ID] = true
		default:
			results[u.ID] = "Already airborne"
		}
	}
	return results, nil
}
