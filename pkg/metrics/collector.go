package metrics

import "time"

// Registry is the slice of pkg/server.Registry the collector polls.
// Defined here rather than imported, since pkg/server already imports
// pkg/metrics to record per-event counters and an import the other way
// would cycle.
type Registry interface {
	Count() int
}

// Collector periodically recomputes gauge metrics from their source of
// truth, correcting for drift the incremental per-event counters in
// pkg/server can't track on their own (a worker's session dying without
// an explicit unregister call never decrements WorkersRegistered).
type Collector struct {
	registry Registry
	stopCh   chan struct{}
}

// NewCollector builds a Collector over registry. registry may be nil,
// in which case Start runs a no-op collection loop (useful for a
// server started without any workers wired in yet, e.g. in tests).
func NewCollector(registry Registry) *Collector {
	return &Collector{
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick, in its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the collection loop. Not safe to call twice.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.registry == nil {
		return
	}
	WorkersRegistered.Set(float64(c.registry.Count()))
}
