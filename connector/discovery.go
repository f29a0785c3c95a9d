package connector

import (
	"time"

	"github.com/c360/mediaconnector/component"
	"github.com/c360/mediaconnector/pipeline"
)

// Version is reported in component metadata
const Version = "1.0.0"

// Meta implements component.Discoverable
func (c *Connector) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "connector",
		Description: "Dynamic tap connector with per-sink conversion subgraphs",
		Version:     Version,
	}
}

// InputPorts implements component.Discoverable with one port per sink tap
func (c *Connector) InputPorts() []component.Port {
	return c.ports(pipeline.DirectionSink, component.DirectionInput)
}

// OutputPorts implements component.Discoverable with one port per source tap
func (c *Connector) OutputPorts() []component.Port {
	return c.ports(pipeline.DirectionSource, component.DirectionOutput)
}

func (c *Connector) ports(dir pipeline.Direction, portDir component.Direction) []component.Port {
	var ports []component.Port
	for _, info := range c.Snapshot() {
		if info.Direction != dir {
			continue
		}
		ports = append(ports, component.Port{
			Name:        info.Name,
			Direction:   portDir,
			Description: dir.String() + " tap",
			Config: component.TapPort{
				Connector: c.name,
				Tap:       info.Name,
				State:     info.State,
				Caps:      info.Caps,
				Target:    info.Target,
			},
		})
	}
	return ports
}

// Health implements component.Discoverable. A closed connector is unhealthy;
// stalls and structural errors are counted but do not flip the flag.
func (c *Connector) Health() component.HealthStatus {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	lastError, _ := c.lastError.Load().(string)
	if closed {
		lastError = "connector closed"
	}
	return component.HealthStatus{
		Healthy:    !closed,
		LastCheck:  time.Now(),
		ErrorCount: int(c.stalled.Load() + c.structural.Load()),
		LastError:  lastError,
		Uptime:     time.Since(c.startTime),
	}
}

// DataFlow implements component.Discoverable. LinkRate is the share of link
// attempts that succeeded; ErrorRate is structural errors per arrived format.
func (c *Connector) DataFlow() component.FlowMetrics {
	formats := float64(c.formats.Load())
	linked := float64(c.linked.Load())
	stalled := float64(c.stalled.Load())

	flow := component.FlowMetrics{}
	if secs := time.Since(c.startTime).Seconds(); secs > 0 {
		flow.FormatsPerSecond = formats / secs
	}
	if linked+stalled > 0 {
		flow.LinkRate = linked / (linked + stalled)
	}
	if formats > 0 {
		flow.ErrorRate = float64(c.structural.Load()) / formats
	}
	if ns := c.lastActivity.Load(); ns > 0 {
		flow.LastActivity = time.Unix(0, ns)
	}
	return flow
}
