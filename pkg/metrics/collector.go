package metrics

import (
	"time"
)

// MonitorStats is implemented by the health monitor
type MonitorStats interface {
	WorkerCount() int
}

// QueueStats is implemented by the action queue
type QueueStats interface {
	Len() int
}

// Collector periodically samples gauges that are not updated inline
type Collector struct {
	monitor  MonitorStats
	queue    QueueStats
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(monitor MonitorStats, queue QueueStats) *Collector {
	return &Collector{
		monitor:  monitor,
		queue:    queue,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
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

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.monitor != nil {
		MonitoredContainers.Set(float64(c.monitor.WorkerCount()))
	}
	if c.queue != nil {
		QueueDepth.Set(float64(c.queue.Len()))
	}
}
