package health

import (
	"fmt"
	"time"
)

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StatusHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a degraded status. Degraded is not healthy.
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// Aggregate rolls sub-statuses up: unhealthy wins over degraded, degraded
// over healthy. No sub-statuses is healthy. The message counts the checks
// that decided the result.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no checks registered")
	}

	var unhealthy, degraded int
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy > 0:
		status = NewUnhealthy(component, fmt.Sprintf("%d of %d checks unhealthy", unhealthy, len(subStatuses)))
	case degraded > 0:
		status = NewDegraded(component, fmt.Sprintf("%d of %d checks degraded", degraded, len(subStatuses)))
	default:
		status = NewHealthy(component, fmt.Sprintf("%d checks healthy", len(subStatuses)))
	}
	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}
