package metrics

import (
	"context"
	"time"
)

// RunHistory is the view of the run store the collector samples
type RunHistory interface {
	CountByResult() (succeeded int, failed int, err error)
}

// ContainerLister reports the containers present in the worker's
// runtime namespace
type ContainerLister interface {
	ContainerIDs(ctx context.Context) ([]string, error)
}

// Collector periodically samples slow-moving worker state into gauges.
// Counters and timers are observed inline at their call sites; this
// covers the state only a scan can see.
type Collector struct {
	history    RunHistory
	containers ContainerLister
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(history RunHistory, containers ContainerLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		history:    history,
		containers: containers,
		interval:   interval,
		stopCh:     make(chan struct{}),
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
	c.collectRunHistory()
	c.collectContainers()
}

func (c *Collector) collectRunHistory() {
	if c.history == nil {
		return
	}
	succeeded, failed, err := c.history.CountByResult()
	if err != nil {
		return
	}
	RunsRecorded.WithLabelValues("success").Set(float64(succeeded))
	RunsRecorded.WithLabelValues("failure").Set(float64(failed))
}

func (c *Collector) collectContainers() {
	if c.containers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids, err := c.containers.ContainerIDs(ctx)
	if err != nil {
		return
	}
	ContainersActive.Set(float64(len(ids)))
}
