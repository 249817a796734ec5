package model

import (
	"sync"
	"time"
)

// GPSCoordinate is a WGS84 position with altitude above mean sea level.
type GPSCoordinate struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	AMSL float64 `json:"amsl"`
}

// UAVStatus is the last known state of a UAV, serialized into UAV-INF
// messages and mirrored into the device tree.
type UAVStatus struct {
	ID        string        `json:"id"`
	Position  GPSCoordinate `json:"position"`
	Heading   float64       `json:"heading"`
	Battery   float64       `json:"battery"`
	UpdatedAt time.Time     `json:"timestamp"`
}

// View returns the wire representation of the status.
func (s UAVStatus) View() map[string]any {
	return map[string]any{
		"id":        s.ID,
		"position":  s.Position,
		"heading":   s.Heading,
		"battery":   s.Battery,
		"timestamp": s.UpdatedAt,
	}
}

// UAV is a remotely managed vehicle tracked by id. Every UAV is owned by
// exactly one driver; the dispatcher groups targets by this relation. The
// status is written by the driver's update path and read concurrently by
// notification broadcasts, so access goes through Status and SetStatus.
type UAV struct {
	ID     string
	Driver Driver

	mu     sync.Mutex
	status UAVStatus
}

// NewUAV creates a UAV owned by the given driver with the initial status.
func NewUAV(id string, driver Driver, status UAVStatus) *UAV {
	return &UAV{ID: id, Driver: driver, status: status}
}

// Status returns a snapshot of the last known status.
func (u *UAV) Status() UAVStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// SetStatus replaces the last known status.
func (u *UAV) SetStatus(status UAVStatus) {
	u.mu.Lock()
	u.status = status
	u.mu.Unlock()
}
