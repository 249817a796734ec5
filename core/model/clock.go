package model

import "time"

// Clock is a named time source managed by the server, e.g. the wall clock or
// a mission elapsed timer.
type Clock struct {
	ID             string
	Epoch          time.Time
	TicksPerSecond float64
	Running        bool
}

// Ticks returns the number of ticks elapsed since the epoch at the given
// instant. A stopped clock always reads zero.
func (c Clock) Ticks(now time.Time) float64 {
	if !c.Running {
		return 0
	}
	return now.Sub(c.Epoch).Seconds() * c.TicksPerSecond
}

// View returns the wire representation used in CLK-INF messages.
func (c Clock) View(now time.Time) map[string]any {
	return map[string]any{
		"id":             c.ID,
		"epoch":          c.Epoch,
		"ticksPerSecond": c.TicksPerSecond,
		"running":        c.Running,
		"ticks":          c.Ticks(now),
	}
}
