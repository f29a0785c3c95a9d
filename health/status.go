// Package health provides health reporting for connectors and the daemon
package health

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/mediaconnector/component"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LinkRate     float64       `json:"link_rate,omitempty"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// sanitizeErrorMessage strips addresses and credentials before an error
// reaches a health endpoint.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}
	sanitized := urlRegex.ReplaceAllString(err, "[URL]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")
	return credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
}

// FromComponentHealth converts a component.HealthStatus to a health.Status
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	status := NewUnhealthy(name, "Component unhealthy")
	if ch.Healthy {
		status = NewHealthy(name, "Component healthy")
	}
	if ch.LastError != "" {
		status.Message = sanitizeErrorMessage(ch.LastError)
	}

	return status.WithMetrics(&Metrics{
		Uptime:       ch.Uptime,
		ErrorCount:   ch.ErrorCount,
		LastActivity: ch.LastCheck,
	})
}

// FromTap reports a single tap. Source taps waiting for an upstream producer
// are degraded; everything else is healthy.
func FromTap(tp component.TapPort) Status {
	name := tp.ResourceID()
	switch tp.State {
	case "WAITING":
		return NewDegraded(name, fmt.Sprintf("waiting for a producer of %s", tp.Caps))
	case "":
		msg := "sink tap"
		if tp.Caps != "" {
			msg += " carrying " + tp.Caps
		}
		return NewHealthy(name, msg)
	default:
		return NewHealthy(name, strings.ToLower(tp.State))
	}
}

// FromDiscoverable builds a component status with one sub-status per tap.
// The component is degraded when any tap is degraded, and unhealthy when its
// own health says so.
func FromDiscoverable(comp component.Discoverable) Status {
	meta := comp.Meta()
	own := FromComponentHealth(meta.Name, comp.Health())

	var subs []Status
	for _, ports := range [][]component.Port{comp.InputPorts(), comp.OutputPorts()} {
		for _, p := range ports {
			if tp, ok := p.Config.(component.TapPort); ok {
				subs = append(subs, FromTap(tp))
			}
		}
	}

	status := own
	if own.IsHealthy() {
		agg := Aggregate(meta.Name, subs)
		if !agg.IsHealthy() {
			status.Healthy = false
			status.Status = agg.Status
			status.Message = agg.Message
		}
	}
	status.SubStatuses = subs

	flow := comp.DataFlow()
	status.Metrics.LinkRate = flow.LinkRate
	if flow.LastActivity.After(status.Metrics.LastActivity) {
		status.Metrics.LastActivity = flow.LastActivity
	}
	return status
}
