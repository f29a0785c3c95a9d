package health

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/c360/mediaconnector/component"
	"github.com/c360/mediaconnector/metric"
)

// Monitor tracks health of components and plain named checks in a
// thread-safe manner. Registered components are polled on every Check.
type Monitor struct {
	mu         sync.RWMutex
	statuses   map[string]Status
	components map[string]component.Discoverable
	metrics    *metric.Metrics
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses:   make(map[string]Status),
		components: make(map[string]component.Discoverable),
	}
}

// SetMetrics records every Check result in the health status gauge
func (m *Monitor) SetMetrics(metrics *metric.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// Register adds a component polled on every Check
func (m *Monitor) Register(comp component.Discoverable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[comp.Meta().Name] = comp
}

// Update records a status for a named check
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy records a healthy check
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy records an unhealthy check
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, sanitizeErrorMessage(message)))
}

// Remove stops tracking a check or component
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.components, name)
}

// Get returns the current status of a check or component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	comp, isComp := m.components[name]
	status, ok := m.statuses[name]
	m.mu.RUnlock()

	if isComp {
		return FromDiscoverable(comp), true
	}
	return status, ok
}

// Check aggregates every check and component, sorted by name
func (m *Monitor) Check(systemName string) Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses)+len(m.components))
	for _, s := range m.statuses {
		subs = append(subs, s)
	}
	comps := make([]component.Discoverable, 0, len(m.components))
	for _, c := range m.components {
		comps = append(comps, c)
	}
	metrics := m.metrics
	m.mu.RUnlock()

	// components are polled without the monitor lock
	for _, c := range comps {
		subs = append(subs, FromDiscoverable(c))
	}
	slices.SortFunc(subs, func(a, b Status) int {
		switch {
		case a.Component < b.Component:
			return -1
		case a.Component > b.Component:
			return 1
		}
		return 0
	})
	status := Aggregate(systemName, subs)

	if metrics != nil {
		for _, s := range subs {
			metrics.RecordHealthStatus(s.Component, s.IsHealthy(), s.IsDegraded())
		}
		metrics.RecordHealthStatus(systemName, status.IsHealthy(), status.IsDegraded())
	}
	return status
}

// Count returns the number of tracked checks and components
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses) + len(m.components)
}

// Handler serves Check(systemName) as JSON. Unhealthy systems answer 503.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.Check(systemName)
		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
