// Package natsclient provides the NATS connection that carries tap events,
// guarded by a circuit breaker.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/mediaconnector/errors"
	"github.com/c360/mediaconnector/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error aliases so callers can match either package's sentinel
var (
	ErrNotConnected      = errors.ErrNoConnection
	ErrCircuitOpen       = errors.ErrCircuitOpen
	ErrConnectionTimeout = errors.ErrConnectionTimeout
)

// Stats is a point-in-time view of the client
type Stats struct {
	Status      ConnectionStatus `json:"status"`
	Failures    int32            `json:"failures"`
	LastFailure time.Time        `json:"last_failure,omitempty"`
	Backoff     time.Duration    `json:"backoff"`
	RTT         time.Duration    `json:"rtt,omitempty"`
}

// Client is a NATS connection for publishing tap events. Connect and publish
// failures feed a circuit breaker; while it is open, both fail fast with
// ErrCircuitOpen.
type Client struct {
	url     string
	status  atomic.Int32
	breaker *breaker
	logger  Logger
	metrics *metric.Metrics

	// set by options, read-only afterwards
	circuitThreshold int32
	maxBackoff       time.Duration
	maxReconnects    int
	reconnectWait    time.Duration
	pingInterval     time.Duration
	timeout          time.Duration
	drainTimeout     time.Duration
	healthInterval   time.Duration
	clientName       string
	onHealthChange   func(bool)

	mu         sync.RWMutex
	conn       *nats.Conn
	subs       []*nats.Subscription
	stopHealth context.CancelFunc
	username   string
	password   string
	token      string

	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a disconnected client for url
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           NewSlogLogger(nil),
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
		healthInterval:   10 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.breaker = newBreaker(c.circuitThreshold, c.maxBackoff)

	c.logger.Debugf("Created NATS client for %s", url)
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// IsHealthy reports whether the client is connected
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the failures recorded since the last successful connect
func (c *Client) Failures() int32 {
	return c.breaker.failures()
}

// Backoff returns the wait applied the next time the circuit opens
func (c *Client) Backoff() time.Duration {
	return c.breaker.currentBackoff()
}

// Stats describes the client, including the server round trip when connected
func (c *Client) Stats() Stats {
	st := Stats{
		Status:      c.Status(),
		Failures:    c.breaker.failures(),
		LastFailure: c.breaker.lastFailure(),
		Backoff:     c.breaker.currentBackoff(),
	}
	if rtt, err := c.RTT(); err == nil {
		st.RTT = rtt
	}
	return st
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
	c.recordStatus(s)
}

func (c *Client) recordStatus(s ConnectionStatus) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordNATSStatus(s == StatusConnected)
	open := 0
	if s == StatusCircuitOpen {
		open = 1
	}
	c.metrics.RecordCircuitBreakerState(open)
}

// recordFailure counts a failure and opens the circuit when a round completes.
// The circuit half-opens again after the backoff that applied before the round.
func (c *Client) recordFailure() {
	wait, tripped := c.breaker.fail()
	if !tripped {
		return
	}

	cur := c.Status()
	if cur == StatusCircuitOpen {
		c.logger.Printf("Circuit breaker still open, backoff now %v", c.breaker.currentBackoff())
		return
	}
	if !c.status.CompareAndSwap(int32(cur), int32(StatusCircuitOpen)) {
		return
	}
	c.recordStatus(StatusCircuitOpen)
	c.logger.Printf("Circuit breaker opened after %d failures, backing off for %v", c.breaker.failures(), wait)
	time.AfterFunc(wait, c.halfOpen)
}

func (c *Client) resetCircuit() {
	c.breaker.reset()
	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// halfOpen lets the next Connect or Publish try again
func (c *Client) halfOpen() {
	if c.status.CompareAndSwap(int32(StatusCircuitOpen), int32(StatusDisconnected)) {
		c.recordStatus(StatusDisconnected)
		c.logger.Debugf("Circuit breaker half-open")
	}
}

// WaitForConnection blocks until the client is connected or ctx ends
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for !c.IsHealthy() {
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ErrConnectionTimeout, "Client", "WaitForConnection", ctx.Err().Error())
		case <-ticker.C:
		}
	}
	return nil
}

func (c *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) { c.onConnectionLost(err) }),
		nats.ReconnectHandler(func(*nats.Conn) { c.onConnectionRestored() }),
		nats.ClosedHandler(func(*nats.Conn) {
			c.setStatus(StatusDisconnected)
			c.notifyHealth(false)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Errorf("NATS error: %v", err)
		}),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect dials the server. It fails fast while the circuit is open.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		return errors.WrapTransient(ErrCircuitOpen, "Client", "Connect", "circuit check")
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("Connecting to NATS at %s", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	opts := c.natsOptions()
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
	}

	if res.err != nil {
		c.recordFailure()
		if c.Status() == StatusCircuitOpen {
			return errors.WrapTransient(ErrCircuitOpen, "Client", "Connect", "establish connection")
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = res.conn
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Printf("Connected to NATS at %s", c.url)

	if c.healthInterval > 0 {
		c.startHealthMonitoring()
	}
	c.notifyHealth(true)
	return nil
}

// Close unsubscribes, drains and closes the connection, then clears
// credentials. Later calls return the first call's result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close(ctx)
	})
	return c.closeErr
}

func (c *Client) close(ctx context.Context) error {
	c.stopHealthMonitoring()

	c.mu.Lock()
	subs, conn := c.subs, c.conn
	c.subs, c.conn = nil, nil
	c.username, c.password, c.token = "", "", ""
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	if conn != nil {
		if err := drain(ctx, conn, c.drainTimeout); err != nil {
			errs = append(errs, err)
		}
		conn.Close()
	}
	c.setStatus(StatusDisconnected)

	for _, err := range errs {
		c.logger.Errorf("close: %v", err)
	}
	return stderrors.Join(errs...)
}

// drain waits for conn to flush pending publishes, bounded by timeout and ctx
func drain(ctx context.Context, conn *nats.Conn, timeout time.Duration) error {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout), "Client", "Close", "drain")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain")
	}
}

// connected returns the live connection or nil
func (c *Client) connected() *nats.Conn {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return nil
	}
	return conn
}

// RTT measures the round trip to the server
func (c *Client) RTT() (time.Duration, error) {
	conn := c.connected()
	if conn == nil {
		return 0, ErrNotConnected
	}
	rtt, err := conn.RTT()
	if err == nil && c.metrics != nil {
		c.metrics.RecordNATSRTT(rtt)
	}
	return rtt, err
}

// Publish sends one payload. Every failure is transient; publish errors from
// the server also count toward the circuit breaker.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	if c.Status() == StatusCircuitOpen {
		return errors.WrapTransient(ErrCircuitOpen, "Client", "Publish", subject)
	}
	conn := c.connected()
	if conn == nil {
		return errors.WrapTransient(ErrNotConnected, "Client", "Publish", subject)
	}
	if err := conn.Publish(subject, data); err != nil {
		c.recordFailure()
		return errors.WrapTransient(err, "Client", "Publish", subject)
	}
	return nil
}

// Subscribe delivers messages on subject to handler. Each call gets a context
// derived from ctx with a 30 second timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	conn := c.connected()
	if conn == nil {
		return ErrNotConnected
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.Wrap(err, "Client", "Subscribe", "subscribe "+subject)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Flush waits until the server has processed everything published so far
func (c *Client) Flush(ctx context.Context) error {
	conn := c.connected()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.FlushWithContext(ctx)
}

func (c *Client) onConnectionLost(err error) {
	c.setStatus(StatusReconnecting)
	if err != nil {
		c.logger.Errorf("Connection to %s lost: %v", c.url, err)
	}
	c.notifyHealth(false)
}

func (c *Client) onConnectionRestored() {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	if c.metrics != nil {
		c.metrics.RecordNATSReconnect()
	}
	c.notifyHealth(true)
}

func (c *Client) notifyHealth(healthy bool) {
	if c.onHealthChange != nil {
		go c.onHealthChange(healthy)
	}
}

func (c *Client) startHealthMonitoring() {
	c.stopHealthMonitoring()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.stopHealth = cancel
	c.mu.Unlock()

	go c.monitorHealth(ctx)
}

func (c *Client) stopHealthMonitoring() {
	c.mu.Lock()
	stop := c.stopHealth
	c.stopHealth = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// monitorHealth probes the server every healthInterval and reports changes
func (c *Client) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	healthy := c.IsHealthy()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := c.probe()
		if now != healthy {
			c.notifyHealth(now)
		}
		healthy = now
	}
}

// probe moves the status between connected and reconnecting based on a round
// trip. An open circuit is left alone.
func (c *Client) probe() bool {
	_, err := c.RTT()
	ok := err == nil

	switch st := c.Status(); {
	case ok && st != StatusConnected && st != StatusCircuitOpen:
		c.setStatus(StatusConnected)
	case !ok && st == StatusConnected:
		c.setStatus(StatusReconnecting)
	}
	return ok
}
