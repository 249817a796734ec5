// Package sim provides an in-process driver with simulated UAVs. The
// virtual vehicles circle their home position while airborne, drain their
// battery over time and complete commands asynchronously, which makes them
// useful for exercising the dispatcher, the receipt lifecycle and the device
// tree without real hardware.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/flocklink/fleetd/core/model"
)

// approximate meters per degree of latitude on the WGS84 ellipsoid
const metersPerDegree = 111320.0

type virtualUAV struct {
	mu sync.Mutex

	id      string
	home    model.GPSCoordinate
	radius  float64 // meters
	speed   float64 // radians per second while airborne
	angle   float64
	heading float64
	battery float64 // percent
	flying  bool
}

func newVirtualUAV(id string, home model.GPSCoordinate, radius float64) *virtualUAV {
	return &virtualUAV{
		id:      id,
		home:    home,
		radius:  radius,
		speed:   2 * math.Pi / 60, // one lap per minute
		battery: 100,
	}
}

// takeOff lifts the UAV. It reports false when the UAV is already airborne
// or its battery is depleted.
func (u *virtualUAV) takeOff() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.flying || u.battery <= 0 {
		return false
	}
	u.flying = true
	return true
}

// land puts the UAV back on the ground. It reports false when the UAV is
// already on the ground.
func (u *virtualUAV) land() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.flying {
		return false
	}
	u.flying = false
	return true
}

// step advances the simulation by dt and returns the new status snapshot.
// Airborne UAVs move along their circle and drain the battery faster; a
// depleted battery forces a landing.
func (u *virtualUAV) step(dt time.Duration, now time.Time) model.UAVStatus {
	u.mu.Lock()
	defer u.mu.Unlock()

	seconds := dt.Seconds()
	if u.flying {
		u.angle += u.speed * seconds
		u.battery -= 0.1 * seconds
		if u.battery <= 0 {
			u.battery = 0
			u.flying = false
		}
	} else {
		u.battery -= 0.001 * seconds
		if u.battery < 0 {
			u.battery = 0
		}
	}

	pos := u.home
	alt := 0.0
	if u.flying {
		latOffset := u.radius * math.Sin(u.angle) / metersPerDegree
		lonOffset := u.radius * math.Cos(u.angle) /
			(metersPerDegree * math.Cos(u.home.Lat*math.Pi/180))
		pos.Lat += latOffset
		pos.Lon += lonOffset
		alt = 20
		u.heading = math.Mod(u.angle*180/math.Pi+90, 360)
	}
	pos.AMSL = u.home.AMSL + alt

	return model.UAVStatus{
		ID:        u.id,
		Position:  pos,
		Heading:   u.heading,
		Battery:   u.battery,
		UpdatedAt: now,
	}
}
