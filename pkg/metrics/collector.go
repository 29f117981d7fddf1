package metrics

import (
	"context"
	"time"

	"github.com/anchorhq/anchor/pkg/runtime"
	"github.com/anchorhq/anchor/pkg/volume"
)

// Collector periodically samples the local inventory gauges from the
// container runtime and the volume service.
type Collector struct {
	runtime runtime.Client
	volumes volume.Service
	stopCh  chan struct{}
}

// NewCollector creates a new inventory collector
func NewCollector(rt runtime.Client, volumes volume.Service) *Collector {
	return &Collector{
		runtime: rt,
		volumes: volumes,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if units, err := c.runtime.List(ctx); err == nil {
		running := 0
		for _, unit := range units {
			if unit.ActivationState == runtime.ActivationActive {
				running++
			}
		}
		ApplicationsRunning.Set(float64(running))
	}

	if volumes, err := c.volumes.Enumerate(ctx); err == nil {
		VolumesTotal.Set(float64(len(volumes)))
	}
}
