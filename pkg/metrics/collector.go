package metrics

import "time"

// StatsSource is the minimal view of a live Transit instance a Collector polls.
// Defined here (rather than imported from pkg/transit) to avoid a dependency
// cycle: transit depends on metrics for its counters, not the other way round.
type StatsSource interface {
	PendingCount() int
	Connected() bool
}

// Collector periodically samples a Transit instance's gauges that aren't updated
// inline on every event (PendingRequests, ConnectionState).
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for the given source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	PendingRequests.Set(float64(c.source.PendingCount()))

	if c.source.Connected() {
		ConnectionState.Set(1)
	} else {
		ConnectionState.Set(0)
	}
}
