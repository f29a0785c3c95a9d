package connector

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/mediaconnector/broadcast"
	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/component"
	"github.com/c360/mediaconnector/config"
	"github.com/c360/mediaconnector/converter"
	"github.com/c360/mediaconnector/errors"
	"github.com/c360/mediaconnector/events"
	"github.com/c360/mediaconnector/metric"
	"github.com/c360/mediaconnector/pipeline"
	"github.com/c360/mediaconnector/tap"
)

// Template names a request-pad template
type Template string

// Supported templates
const (
	SinkTemplate   Template = "sink_%u"
	SourceTemplate Template = "src_%u"
)

const defaultStopTimeout = 5 * time.Second

// Connector exposes sink and source taps on a host pipeline and inserts a
// conversion subgraph behind every sink tap. Source taps are linked to a
// subgraph output when a format arrives on a sink tap.
type Connector struct {
	id          string
	name        string
	cfg         config.ConnectorConfig
	host        pipeline.Host
	logger      *slog.Logger
	broadcaster *broadcast.Broadcaster
	events      *events.Publisher
	ownsEvents  bool
	factory     converter.Factory
	metrics     *connectorMetrics
	core        *metric.Metrics

	// mu guards structural changes to taps and pool. It is never held while
	// a tap lock is taken or a listener runs.
	mu     sync.Mutex
	taps   *tap.Registry
	pool   *converter.Pool
	closed bool

	stateMu sync.Mutex
	state   component.State

	startTime    time.Time
	formats      atomic.Int64
	linked       atomic.Int64
	stalled      atomic.Int64
	structural   atomic.Int64
	lastActivity atomic.Int64
	lastError    atomic.Value // string
}

// Option configures a Connector
type Option func(*Connector)

// WithConfig sets name, converter prefix and matching policy
func WithConfig(cfg config.ConnectorConfig) Option {
	return func(c *Connector) {
		c.cfg = cfg
	}
}

// WithConverterFactory replaces the default in-memory converter factory
func WithConverterFactory(f converter.Factory) Option {
	return func(c *Connector) {
		c.factory = f
	}
}

// WithBroadcaster shares a capability broadcaster between connectors
func WithBroadcaster(b *broadcast.Broadcaster) Option {
	return func(c *Connector) {
		c.broadcaster = b
	}
}

// WithEvents publishes tap lifecycle events, overriding Dependencies.Events.
// Unlike the shared Dependencies.Events publisher, which whoever created it
// starts and stops, this one follows the connector's Start, Stop and Close.
func WithEvents(p *events.Publisher) Option {
	return func(c *Connector) {
		c.events = p
		c.ownsEvents = p != nil
	}
}

// New creates a connector on host
func New(host pipeline.Host, deps component.Dependencies, opts ...Option) (*Connector, error) {
	if host == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Connector", "New", "host is required")
	}

	c := &Connector{
		id:        uuid.NewString(),
		cfg:       config.Default().Connector,
		host:      host,
		taps:      tap.NewRegistry(),
		startTime: time.Now(),
		state:     component.StateCreated,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cfg.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Connector", "New", "name is required")
	}
	c.name = c.cfg.Name
	if c.factory == nil {
		c.factory = pipeline.NewAgnosticFactory(c.cfg.ConverterPrefix)
	}
	if c.broadcaster == nil {
		c.broadcaster = broadcast.New()
	}
	if c.events == nil {
		c.events = deps.Events
	}
	c.pool = converter.NewPool(host, c.factory)
	c.logger = deps.GetLoggerWithComponent("connector", "connector", c.name)
	c.lastError.Store("")

	if deps.MetricsRegistry != nil {
		m, err := newConnectorMetrics(deps.MetricsRegistry, c.name)
		if err != nil {
			c.logger.Warn("Connector metrics not registered", "error", err)
		}
		c.metrics = m
		c.core = deps.MetricsRegistry.CoreMetrics()
	}

	c.logger.Debug("Connector created", "id", c.id, "match_existing", c.cfg.MatchExisting)
	return c, nil
}

// ID returns the instance identifier
func (c *Connector) ID() string {
	return c.id
}

// Name returns the connector name
func (c *Connector) Name() string {
	return c.name
}

// Broadcaster returns the broadcaster asked when a source tap declares a format
func (c *Connector) Broadcaster() *broadcast.Broadcaster {
	return c.broadcaster
}

// RequestPad creates a tap from a template. declared only applies to source
// taps. An unknown template returns ErrUnsupportedTemplate and changes nothing.
func (c *Connector) RequestPad(tmpl Template, declared caps.Caps) (pipeline.Pad, error) {
	switch tmpl {
	case SinkTemplate:
		s, err := c.RequestSink()
		if err != nil {
			return nil, err
		}
		return s, nil
	case SourceTemplate:
		s, err := c.RequestSource(declared)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		c.metrics.request(string(tmpl), false)
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnsupportedTemplate, tmpl),
			"Connector", "RequestPad", "template lookup")
	}
}

// RequestSink creates a conversion subgraph and a sink tap bound to its input
func (c *Connector) RequestSink() (*tap.Sink, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.request(string(SinkTemplate), false)
		return nil, errors.WrapFatal(errors.ErrClosed, "Connector", "RequestSink", "closed check")
	}
	name := c.taps.ReserveSinkName()
	sg, err := c.pool.Create(name)
	if err != nil {
		c.mu.Unlock()
		c.metrics.request(string(SinkTemplate), false)
		c.recordError(err)
		return nil, errors.Wrap(err, "Connector", "RequestSink", "subgraph creation")
	}
	sink := c.taps.RegisterSink(name, sg.Converter().Input())
	c.mu.Unlock()

	sink.Observe(c.onFormat)
	if err := c.expose(sink); err != nil {
		c.mu.Lock()
		c.taps.Remove(name)
		c.mu.Unlock()
		if uerr := c.pool.Unref(sg); uerr != nil {
			c.logger.Error("Subgraph release failed", "tap", name, "error", uerr)
		}
		c.metrics.request(string(SinkTemplate), false)
		return nil, err
	}

	c.metrics.request(string(SinkTemplate), true)
	c.refreshGauges()
	c.touch()
	c.publish(events.KindTapCreated, sink.Name(), pipeline.DirectionSink, "", caps.Empty())
	c.logger.Debug("Sink tap created", "tap", sink.Name(), "converter", sg.Name())
	return sink, nil
}

// RequestSource creates a source tap. With no declared format the tap stays
// UNCONFIGURED. With one, it is classified right away: LINKED when matching
// is enabled and an existing subgraph fits, else WAITING when an upstream
// listener claims the format and CONFIGURED when none does.
func (c *Connector) RequestSource(declared caps.Caps) (*tap.Source, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.request(string(SourceTemplate), false)
		return nil, errors.WrapFatal(errors.ErrClosed, "Connector", "RequestSource", "closed check")
	}
	src := c.taps.CreateSource(declared)
	c.mu.Unlock()

	if err := c.expose(src); err != nil {
		c.mu.Lock()
		c.taps.Remove(src.Name())
		c.mu.Unlock()
		c.metrics.request(string(SourceTemplate), false)
		return nil, err
	}
	c.metrics.request(string(SourceTemplate), true)
	c.publish(events.KindTapCreated, src.Name(), pipeline.DirectionSource, tap.Unconfigured.String(), declared)

	if !declared.IsEmpty() {
		c.classify(src, declared)
	}

	c.refreshGauges()
	c.touch()
	c.logger.Debug("Source tap created", "tap", src.Name(), "state", src.State(), "caps", declared)
	return src, nil
}

// Configure declares a format on an UNCONFIGURED source tap and classifies
// it the same way RequestSource does.
func (c *Connector) Configure(src *tap.Source, declared caps.Caps) error {
	if !c.ownsSource(src) {
		return errors.WrapInvalid(errors.ErrUnknownTap, "Connector", "Configure", "ownership check")
	}
	if err := src.Declare(declared); err != nil {
		return err
	}

	c.classify(src, declared)
	c.refreshGauges()
	c.touch()
	return nil
}

// classify settles the initial state of a source tap that has a declared
// format. No connector or tap lock is held while listeners run.
func (c *Connector) classify(src *tap.Source, declared caps.Caps) {
	if c.cfg.MatchExisting && c.linkExisting(src, declared) {
		return
	}

	claimed := c.broadcaster.Announce(declared)
	c.metrics.broadcast(claimed)

	next := tap.Configured
	if claimed {
		next = tap.Waiting
	}

	changed := false
	src.Locked(func(ss *tap.SourceState) {
		if ss.Released || ss.State != tap.Unconfigured {
			return
		}
		ss.State = next
		changed = true
	})

	if changed {
		c.logger.Debug("Source tap classified", "tap", src.Name(), "state", next, "claimed", claimed)
		c.publish(events.KindTapStateChanged, src.Name(), pipeline.DirectionSource, next.String(), declared)
	}
}

// linkExisting binds src straight to a subgraph that has already seen a
// format within declared
func (c *Connector) linkExisting(src *tap.Source, declared caps.Caps) bool {
	sg := c.pool.FindCompatible(declared)
	if sg == nil {
		return false
	}
	out, err := c.pool.RequestOutput(sg)
	if err != nil {
		c.logger.Warn("Direct link output refused", "tap", src.Name(), "converter", sg.Name(), "error", err)
		return false
	}

	bound := false
	src.Locked(func(ss *tap.SourceState) {
		if ss.Released || ss.State != tap.Unconfigured {
			return
		}
		if !c.host.Bind(src, out) {
			return
		}
		ss.State = tap.Linked
		ss.Target = out
		bound = true
	})

	if !bound {
		if err := c.pool.ReleaseOutput(sg, out); err != nil {
			c.logger.Error("Output release failed", "tap", src.Name(), "error", err)
		}
		c.metrics.link(outcomeStalled)
		return false
	}

	c.linked.Add(1)
	c.metrics.link(outcomeLinked)
	c.logger.Debug("Source tap linked to existing subgraph", "tap", src.Name(), "converter", sg.Name())
	c.publish(events.KindTapStateChanged, src.Name(), pipeline.DirectionSource, tap.Linked.String(), declared)
	return true
}

// expose activates the pad when the host is active or heading there, then
// exposes it
func (c *Connector) expose(p pipeline.Pad) error {
	if c.host.ActivationState() == pipeline.ActiveOrPending {
		p.SetActive(true)
	}
	if err := c.host.Expose(p); err != nil {
		p.SetActive(false)
		c.recordError(err)
		return errors.Wrap(err, "Connector", "expose", p.Name())
	}
	return nil
}

// ReleasePad gives a tap back. A linked source tap returns its output to the
// subgraph; a sink tap drops the subgraph's sink reference.
func (c *Connector) ReleasePad(p pipeline.Pad) error {
	switch t := p.(type) {
	case *tap.Source:
		if !c.removeTap(t.Name(), func() bool { return c.ownsSource(t) }) {
			break
		}
		c.releaseSource(t)
		return nil
	case *tap.Sink:
		var sg *converter.Subgraph
		if !c.removeTap(t.Name(), func() bool {
			if !c.ownsSink(t) {
				return false
			}
			sg = c.pool.BySink(t.Name())
			return true
		}) {
			break
		}
		c.releaseSink(t, sg)
		return nil
	}
	return errors.WrapInvalid(errors.ErrUnknownTap, "Connector", "ReleasePad", "ownership check")
}

// removeTap unregisters a tap under the connector lock when owned reports true
func (c *Connector) removeTap(name string, owned func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !owned() {
		return false
	}
	return c.taps.Remove(name)
}

func (c *Connector) releaseSource(src *tap.Source) {
	// Released before withdraw, so an evaluation running in between skips
	// the tap instead of binding a pad the host no longer exposes.
	var out pipeline.Handle
	src.Locked(func(ss *tap.SourceState) {
		ss.Released = true
		out = ss.Target
		ss.Target = nil
	})
	c.withdraw(src)

	if out != nil {
		c.host.Unbind(src)
		if sg := c.pool.ByInput(out.Owner().Input()); sg != nil {
			if err := c.pool.ReleaseOutput(sg, out); err != nil {
				c.recordError(err)
				c.logger.Error("Output release failed", "tap", src.Name(), "error", err)
			}
		}
	}

	c.refreshGauges()
	c.touch()
	c.publish(events.KindTapReleased, src.Name(), pipeline.DirectionSource, src.State().String(), caps.Empty())
	c.logger.Debug("Source tap released", "tap", src.Name())
}

func (c *Connector) releaseSink(sink *tap.Sink, sg *converter.Subgraph) {
	c.withdraw(sink)

	if sg == nil {
		c.structuralError("release", sink.Name(), errors.ErrNoConverter)
	} else if err := c.pool.Unref(sg); err != nil {
		c.recordError(err)
		c.logger.Error("Subgraph release failed", "tap", sink.Name(), "error", err)
	}

	c.refreshGauges()
	c.touch()
	c.publish(events.KindTapReleased, sink.Name(), pipeline.DirectionSink, "", caps.Empty())
	c.logger.Debug("Sink tap released", "tap", sink.Name())
}

// withdraw removes the pad from the host if it is exposed there
func (c *Connector) withdraw(p pipeline.Pad) {
	if err := c.host.Withdraw(p); err != nil {
		c.logger.Debug("Pad was not exposed", "tap", p.Name(), "error", err)
	}
	p.SetActive(false)
}

func (c *Connector) ownsSource(src *tap.Source) bool {
	if src == nil {
		return false
	}
	got, ok := c.taps.Source(src.Name())
	return ok && got == src
}

func (c *Connector) ownsSink(sink *tap.Sink) bool {
	if sink == nil {
		return false
	}
	got, ok := c.taps.Sink(sink.Name())
	return ok && got == sink
}

// Subgraphs returns the number of live conversion subgraphs
func (c *Connector) Subgraphs() int {
	return c.pool.Len()
}

// ownedEvents returns the publisher whose lifecycle this connector drives,
// or nil when events are off or borrowed from Dependencies
func (c *Connector) ownedEvents() *events.Publisher {
	if !c.ownsEvents {
		return nil
	}
	return c.events
}

// Start starts the event publisher passed with WithEvents
func (c *Connector) Start(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	switch {
	case c.state.Running():
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Connector", "Start", "state check")
	case c.state == component.StateClosed:
		return errors.WrapFatal(errors.ErrClosed, "Connector", "Start", "state check")
	}
	if err := c.ownedEvents().Start(ctx); err != nil {
		c.state = component.StateFailed
		c.recordComponentState()
		return errors.Wrap(err, "Connector", "Start", "event publisher start")
	}
	c.state = component.StateStarted
	c.recordComponentState()
	return nil
}

// Stop stops the event publisher passed with WithEvents, waiting up to
// timeout for queued events
func (c *Connector) Stop(timeout time.Duration) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.stopLocked(timeout, component.StateStopped)
}

// stopLocked stops the publisher if running and moves to next. stateMu must be held.
func (c *Connector) stopLocked(timeout time.Duration, next component.State) error {
	wasRunning := c.state.Running()
	if !wasRunning && next != component.StateClosed {
		return nil
	}
	c.state = next
	c.recordComponentState()
	if !wasRunning {
		return nil
	}
	if err := c.ownedEvents().Stop(timeout); err != nil {
		return errors.Wrap(err, "Connector", "Stop", "event publisher stop")
	}
	return nil
}

// Close refuses further requests, drops the subgraph bookkeeping and stops
// an owned event publisher. Subgraphs stay on the host; tearing the host down
// removes them.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.pool.Forget()
	c.mu.Unlock()

	c.refreshGauges()
	c.logger.Debug("Connector closed")

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.stopLocked(defaultStopTimeout, component.StateClosed)
}

// TapInfo is a point-in-time description of one tap
type TapInfo struct {
	Name      string             `json:"name"`
	Direction pipeline.Direction `json:"direction"`
	State     string             `json:"state,omitempty"`
	Caps      string             `json:"caps,omitempty"`
	Target    string             `json:"target,omitempty"`
	Active    bool               `json:"active"`
}

// Snapshot describes every tap, sinks first, each in creation order. Sink
// caps are the last arrived format; source caps are the declared format.
func (c *Connector) Snapshot() []TapInfo {
	sinks := c.taps.Sinks()
	sources := c.taps.Sources()

	infos := make([]TapInfo, 0, len(sinks)+len(sources))
	for _, s := range sinks {
		infos = append(infos, TapInfo{
			Name:      s.Name(),
			Direction: pipeline.DirectionSink,
			Caps:      capsString(s.Current()),
			Target:    handleString(s.Input()),
			Active:    s.Active(),
		})
	}
	for _, s := range sources {
		info := TapInfo{
			Name:      s.Name(),
			Direction: pipeline.DirectionSource,
			Active:    s.Active(),
		}
		s.Locked(func(ss *tap.SourceState) {
			info.State = ss.State.String()
			info.Caps = capsString(ss.Declared())
			info.Target = handleString(ss.Target)
		})
		infos = append(infos, info)
	}
	return infos
}

func capsString(c caps.Caps) string {
	if c.IsEmpty() {
		return ""
	}
	return c.String()
}

func handleString(h pipeline.Handle) string {
	if h == nil || h.Owner() == nil {
		return ""
	}
	return h.Owner().Name() + ":" + h.Name()
}

func (c *Connector) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Connector) publish(kind events.Kind, tapName string, dir pipeline.Direction, state string, cp caps.Caps) {
	if c.events == nil {
		return
	}
	e := events.New(c.name, tapName, dir, kind)
	e.State = state
	e.Caps = capsString(cp)
	if err := c.events.Publish(e); err != nil && !stderrors.Is(err, errors.ErrNotStarted) {
		c.logger.Debug("Tap event dropped", "tap", tapName, "kind", kind, "error", err)
	}
}
