package scan

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/geoscan/core"
	"github.com/signalsfoundry/geoscan/model"
)

// Control is the scan configuration shared between the orchestrator and the
// code that reconfigures it. The interrupt flag is the only cross-goroutine
// signal; everything else is read by the orchestrator at pass boundaries.
type Control struct {
	mu       sync.RWMutex
	coverage model.CoverageSet

	interrupt   atomic.Bool
	lastSuccess atomic.Int64 // unix nanos, zero when unset
}

// NewControl builds the initial coverage set for origin and radius.
func NewControl(origin model.ScanPoint, radius float64) *Control {
	return &Control{coverage: core.GenerateCoverage(origin, radius)}
}

// SetLocation regenerates the coverage set and asks the running pass to
// stop so the next one picks it up.
func (c *Control) SetLocation(origin model.ScanPoint, radius float64) model.CoverageSet {
	set := core.GenerateCoverage(origin, radius)

	c.mu.Lock()
	c.coverage = set
	c.mu.Unlock()

	c.RequestInterrupt()
	return set
}

// Coverage returns the current coverage set. The set is replaced, never
// mutated, so callers may keep it for the duration of a pass.
func (c *Control) Coverage() model.CoverageSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coverage
}

// Origin returns the origin of the current coverage set.
func (c *Control) Origin() model.ScanPoint {
	return c.Coverage().Origin
}

// Radius returns the radius of the current coverage set.
func (c *Control) Radius() float64 {
	return c.Coverage().Radius
}

// RequestInterrupt raises the interrupt flag.
func (c *Control) RequestInterrupt() {
	c.interrupt.Store(true)
}

// ConsumeInterrupt clears the interrupt flag and reports whether it was set.
func (c *Control) ConsumeInterrupt() bool {
	return c.interrupt.Swap(false)
}

// InterruptRequested reports the flag without clearing it.
func (c *Control) InterruptRequested() bool {
	return c.interrupt.Load()
}

// MarkSuccess records t as the time of the last successful request.
func (c *Control) MarkSuccess(t time.Time) {
	c.lastSuccess.Store(t.UnixNano())
}

// LastSuccessfulRequest returns the time of the last successful request, or
// the zero time when none has succeeded yet.
func (c *Control) LastSuccessfulRequest() time.Time {
	n := c.lastSuccess.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
