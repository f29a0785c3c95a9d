package component

import "time"

// Discoverable is what the health monitor and the CLI snapshot know about a
// component: its identity, the taps it exposes on either side, its health
// and how busy negotiation has been.
type Discoverable interface {
	Meta() Metadata
	InputPorts() []Port
	OutputPorts() []Port
	Health() HealthStatus
	DataFlow() FlowMetrics
}

// Metadata identifies a component. Type is "connector" or "converter".
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus is a component's own view of its health, independent of the
// state of its taps
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics summarises negotiation since start. FormatsPerSecond is the
// arrival rate; LinkRate and ErrorRate are ratios in [0,1] of links per
// attempt and structural errors per arrival.
type FlowMetrics struct {
	FormatsPerSecond float64   `json:"formats_per_second"`
	LinkRate         float64   `json:"link_rate"`
	ErrorRate        float64   `json:"error_rate"`
	LastActivity     time.Time `json:"last_activity"`
}
