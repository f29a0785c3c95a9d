package main

import (
	"fmt"
	"log/slog"

	"github.com/c360/mediaconnector/broadcast"
	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/config"
	"github.com/c360/mediaconnector/connector"
	"github.com/c360/mediaconnector/pipeline"
	"github.com/c360/mediaconnector/tap"
)

// claimListener stands in for upstream elements able to produce some formats
type claimListener struct {
	claims []caps.Caps
	logger *slog.Logger
}

func (l *claimListener) OnCapabilityAnnounced(c caps.Caps) bool {
	for _, want := range l.claims {
		if c.IsSubsetOf(want) {
			l.logger.Info("Upstream claimed format", "caps", c, "claim", want)
			return true
		}
	}
	return false
}

var _ broadcast.Listener = (*claimListener)(nil)

// runDemo requests the configured taps, then delivers the configured formats.
// The config is assumed validated.
func runDemo(conn *connector.Connector, demo config.DemoConfig, logger *slog.Logger) error {
	if len(demo.Claims) > 0 {
		l := &claimListener{logger: logger}
		for _, s := range demo.Claims {
			l.claims = append(l.claims, caps.MustParse(s))
		}
		conn.Broadcaster().Register(l)
	}

	sinks := make([]*tap.Sink, 0, demo.Sinks)
	for range demo.Sinks {
		sink, err := conn.RequestSink()
		if err != nil {
			return fmt.Errorf("request sink tap: %w", err)
		}
		sinks = append(sinks, sink)
	}

	for i, s := range demo.Sources {
		declared, err := caps.Parse(s.Caps)
		if err != nil {
			return fmt.Errorf("demo source %d: %w", i, err)
		}
		src, err := conn.RequestSource(declared)
		if err != nil {
			return fmt.Errorf("request source tap: %w", err)
		}
		if s.Downstream == "" {
			continue
		}
		allowed, err := caps.Parse(s.Downstream)
		if err != nil {
			return fmt.Errorf("demo source %d downstream: %w", i, err)
		}
		src.Connect(pipeline.NewStaticPeer(fmt.Sprintf("downstream%d", i), allowed))
	}

	for i, f := range demo.Formats {
		if f.Sink < 0 || f.Sink >= len(sinks) {
			return fmt.Errorf("demo format %d: sink %d does not exist", i, f.Sink)
		}
		c, err := caps.Parse(f.Caps)
		if err != nil {
			return fmt.Errorf("demo format %d: %w", i, err)
		}
		sinks[f.Sink].Deliver(c)
	}

	return nil
}
