package component

import (
	"log/slog"

	"github.com/c360/mediaconnector/events"
	"github.com/c360/mediaconnector/metric"
	"github.com/c360/mediaconnector/natsclient"
)

// Dependencies carries the shared services a connector is built with. Every
// field is optional; a nil field turns the matching feature off.
type Dependencies struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	NATSClient      *natsclient.Client

	// Events receives tap lifecycle events. It is shared by every component
	// of the process and borrowed: whoever created it starts and stops it.
	Events *events.Publisher
}

// GetLogger returns Logger, or slog.Default() when unset
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger tagged with the component kind and
// any extra attributes, e.g. the instance name
func (d *Dependencies) GetLoggerWithComponent(componentName string, attrs ...any) *slog.Logger {
	return d.GetLogger().With(append([]any{"component", componentName}, attrs...)...)
}
