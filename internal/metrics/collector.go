package metrics

import (
	"time"

	"media-catalog/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current catalog statistics
type Stats struct {
	Devices        int
	Bindings       int
	ActiveBindings int
	Files          int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CatalogDevicesTotal.Set(float64(stats.Devices))
	CatalogBindingsTotal.WithLabelValues("active").Set(float64(stats.ActiveBindings))
	CatalogBindingsTotal.WithLabelValues("inactive").Set(float64(stats.Bindings - stats.ActiveBindings))
	CatalogFilesTotal.Set(float64(stats.Files))

	logging.Debug("Metrics collected: devices=%d, bindings=%d, active=%d, files=%d",
		stats.Devices, stats.Bindings, stats.ActiveBindings, stats.Files)
}
