package connector

import (
	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/errors"
	"github.com/c360/mediaconnector/events"
	"github.com/c360/mediaconnector/pipeline"
	"github.com/c360/mediaconnector/tap"
)

// Link attempt outcomes
const (
	outcomeLinked      = "linked"
	outcomeStalled     = "stalled"
	outcomeNoConverter = "no_converter"
	outcomeSkipped     = "skipped"
)

// onFormat runs on the pipeline goroutine that delivered a format to sink.
// It records the format on the sink's subgraph, then re-evaluates every
// source tap. The tap list is copied under the connector lock and walked
// after releasing it, so evaluation may call back into the connector.
func (c *Connector) onFormat(sink *tap.Sink, arrived caps.Caps) {
	if arrived.IsEmpty() {
		c.structuralError("format arrival", sink.Name(),
			errors.WrapFatal(errors.ErrNoStateData, "Connector", "onFormat", "empty format"))
		return
	}

	c.mu.Lock()
	if c.closed || !c.ownsSink(sink) {
		c.mu.Unlock()
		c.logger.Debug("Format ignored on released tap", "tap", sink.Name(), "caps", arrived)
		return
	}
	sources := c.taps.Sources()
	c.mu.Unlock()

	c.formats.Add(1)
	c.touch()
	if sg := c.pool.BySink(sink.Name()); sg != nil {
		sg.Observe(arrived)
	}
	c.publish(events.KindFormatArrived, sink.Name(), pipeline.DirectionSink, "", arrived)
	c.logger.Debug("Format arrived", "tap", sink.Name(), "caps", arrived, "sources", len(sources))

	for _, src := range sources {
		c.evaluate(src, sink, arrived)
	}
	c.refreshGauges()
}

// evaluate moves one source tap forward after a format arrived on sink. Only
// CONFIGURED taps are linked; UNCONFIGURED and WAITING taps are reported and
// left alone, LINKED taps are final.
func (c *Connector) evaluate(src *tap.Source, sink *tap.Sink, arrived caps.Caps) {
	outcome := ""
	var declared caps.Caps

	src.Locked(func(ss *tap.SourceState) {
		if ss.Released || ss.State == tap.Linked {
			return
		}
		log := c.logger.With("tap", src.Name(), "state", ss.State, "sink", sink.Name())

		peer := ss.Peer()
		if peer == nil {
			log.Debug("Source tap not connected downstream")
			outcome = outcomeSkipped
			return
		}

		switch ss.State {
		case tap.Unconfigured:
			log.Debug("Source tap has no declared format")
			outcome = outcomeSkipped
			return
		case tap.Waiting:
			log.Debug("Source tap waiting for upstream producer")
			outcome = outcomeSkipped
			return
		}

		declared = ss.Declared()
		common := caps.Intersect(caps.Intersect(peer.AllowedCaps(), declared), arrived)
		if common.IsEmpty() {
			log.Info("Transcoding required", "caps", arrived, "declared", declared)
		}

		sg := c.pool.BySink(sink.Name())
		if sg == nil {
			outcome = outcomeNoConverter
			return
		}

		out, err := c.pool.RequestOutput(sg)
		if err != nil {
			log.Warn("Converter output request failed", "converter", sg.Name(), "error", err)
			outcome = outcomeStalled
			return
		}
		if !c.host.Bind(src, out) {
			if err := c.pool.ReleaseOutput(sg, out); err != nil {
				log.Error("Output release failed", "error", err)
			}
			log.Warn("Source tap target could not be bound", "target", handleString(out))
			outcome = outcomeStalled
			return
		}

		ss.State = tap.Linked
		ss.Target = out
		outcome = outcomeLinked
		log.Debug("Source tap linked", "target", handleString(out))
	})

	switch outcome {
	case "":
		return
	case outcomeLinked:
		c.linked.Add(1)
		c.publish(events.KindTapStateChanged, src.Name(), pipeline.DirectionSource, tap.Linked.String(), declared)
	case outcomeStalled:
		c.stalled.Add(1)
		c.recordError(errors.WrapTransient(errors.ErrBindFailed, "Connector", "evaluate", src.Name()))
	case outcomeNoConverter:
		c.structuralError("link", src.Name(),
			errors.WrapFatal(errors.ErrNoConverter, "Connector", "evaluate", sink.Name()))
	}
	c.metrics.link(outcome)
}

// structuralError logs an inconsistency scoped to one tap. The connector
// keeps running.
func (c *Connector) structuralError(op, tapName string, err error) {
	c.structural.Add(1)
	c.recordError(err)
	c.logger.Error("Structural inconsistency", "op", op, "tap", tapName, "error", err)
}

func (c *Connector) recordError(err error) {
	c.lastError.Store(err.Error())
	if c.core != nil {
		c.core.RecordError(c.name, errors.Classify(err).String())
	}
}

func (c *Connector) recordComponentState() {
	if c.core != nil {
		c.core.RecordComponentStatus(c.name, int(c.state))
	}
}
