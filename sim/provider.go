package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/flocklink/fleetd/core/logger"
	"github.com/flocklink/fleetd/core/model"
)

// Config configures the virtual UAV provider.
type Config struct {
	// Enabled turns the provider on. Defaults to off; real deployments run
	// without virtual vehicles.
	Enabled bool `json:"enabled"`
	// Count is the number of virtual UAVs to create.
	Count int `json:"count"`
	// IDFormat is the fmt template for the UAV ids, receiving the index.
	IDFormat string `json:"id_format"`
	// Origin is the center of the takeoff circle.
	Origin model.GPSCoordinate `json:"origin"`
	// Radius is the circle radius in meters.
	Radius float64 `json:"radius"`
	// DelaySeconds is the interval between simulated status updates.
	DelaySeconds float64 `json:"delay_seconds"`
	// CommandDelayMS is the mean completion delay of the "yo" command.
	CommandDelayMS int `json:"command_delay_ms"`
}

// SetDefaults fills in the defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.IDFormat == "" {
		c.IDFormat = "VIRT-%d"
	}
	if c.Radius <= 0 {
		c.Radius = 50
	}
	if c.DelaySeconds <= 0 {
		c.DelaySeconds = 1
	}
	if c.CommandDelayMS <= 0 {
		c.CommandDelayMS = 500
	}
}

// Fleet is the part of the server the provider talks to.
type Fleet interface {
	RegisterUAV(u *model.UAV)
	DeregisterUAV(id string)
	UpdateUAVStatus(status model.UAVStatus) error
}

// Provider owns a set of virtual UAVs and feeds their periodic status
// updates into the server.
type Provider struct {
	driver *Driver
	fleet  Fleet
	uavs   []*model.UAV
	delay  time.Duration
	log    logger.Logger
}

// NewProvider creates the virtual UAVs described by the config, homed evenly
// on a circle around the origin, and registers them with the fleet.
func NewProvider(cfg Config, fleet Fleet, driver *Driver, log logger.Logger) *Provider {
	cfg.SetDefaults()
	p := &Provider{
		driver: driver,
		fleet:  fleet,
		delay:  time.Duration(cfg.DelaySeconds * float64(time.Second)),
		log:    log,
	}
	for i := 0; i < cfg.Count; i++ {
		id := fmt.Sprintf(cfg.IDFormat, i)
		u := driver.createUAV(id, placeOnCircle(cfg.Origin, cfg.Radius, i, cfg.Count), cfg.Radius)
		p.uavs = append(p.uavs, u)
		fleet.RegisterUAV(u)
	}
	return p
}

// Run feeds status updates into the fleet on the configured cadence until
// the context is cancelled, then deregisters the UAVs.
func (p *Provider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.delay)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			for _, u := range p.uavs {
				p.fleet.DeregisterUAV(u.ID)
			}
			return ctx.Err()
		case now := <-ticker.C:
			p.tick(now.Sub(last), now)
			last = now
		}
	}
}

func (p *Provider) tick(dt time.Duration, now time.Time) {
	for _, u := range p.uavs {
		v, ok := p.driver.virtual(u.ID)
		if !ok {
			continue
		}
		status := v.step(dt, now)
		if err := p.fleet.UpdateUAVStatus(status); err != nil {
			p.log.Warnf("status update for %s: %v", u.ID, err)
		}
	}
}

// placeOnCircle returns the i-th of n home positions spread evenly on the
// circle of the given radius around the origin.
func placeOnCircle(origin model.GPSCoordinate, radius float64, i, n int) model.GPSCoordinate {
	if n <= 0 {
		return origin
	}
	angle := 2 * math.Pi * float64(i) / float64(n)
	return model.GPSCoordinate{
		Lat:  origin.Lat + radius*math.Sin(angle)/metersPerDegree,
		Lon:  origin.Lon + radius*math.Cos(angle)/(metersPerDegree*math.Cos(origin.Lat*math.Pi/180)),
		AMSL: origin.AMSL,
	}
}
