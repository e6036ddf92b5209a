package telemetry

import (
	"sync"
	"time"
)

// StatsProvider interface for components that provide polled gauge values
type StatsProvider interface {
	ConnectionUp() bool
	LastSyncTimes() map[string]time.Time
}

// Collector periodically samples a StatsProvider and updates telemetry gauges
type Collector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a new gauge collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) collectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	if c.provider.ConnectionUp() {
		ConnectionUp.Set(1)
	} else {
		ConnectionUp.Set(0)
	}

	for name, at := range c.provider.LastSyncTimes() {
		if at.IsZero() {
			continue
		}
		LastSyncUnix.With(name).Set(float64(at.Unix()))
	}
}
