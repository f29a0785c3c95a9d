package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/mediaconnector/metric"
)

// Logger is the printf-style sink the client writes connection events to
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

type slogAdapter struct {
	*slog.Logger
}

// NewSlogLogger routes client logs through logger, or slog.Default() when nil
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogAdapter{logger.With("component", "natsclient")}
}

func (a slogAdapter) Printf(format string, v ...any) { a.Info(fmt.Sprintf(format, v...)) }
func (a slogAdapter) Errorf(format string, v ...any) { a.Error(fmt.Sprintf(format, v...)) }
func (a slogAdapter) Debugf(format string, v ...any) { a.Debug(fmt.Sprintf(format, v...)) }

// ClientOption configures a Client in NewClient. An option error makes
// NewClient fail with an invalid-class error.
type ClientOption func(*Client) error

func positive(what string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %v", what, d)
	}
	return nil
}

// WithName sets the connection name shown by the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithTimeout bounds a single dial
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if err := positive("timeout", d); err != nil {
			return err
		}
		c.timeout = d
		return nil
	}
}

// WithMaxReconnects caps reconnection attempts after a lost connection; -1
// retries forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if err := positive("reconnect wait", d); err != nil {
			return err
		}
		c.reconnectWait = d
		return nil
	}
}

// WithCredentials authenticates with a user and password. Both must be set
// for them to be sent.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithCircuitBreakerThreshold sets how many consecutive failures open the
// circuit
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold <= 0 {
			return fmt.Errorf("circuit breaker threshold must be positive, got %d", threshold)
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps how long the circuit stays open after repeated rounds
// of failures
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if err := positive("max backoff", d); err != nil {
			return err
		}
		c.maxBackoff = d
		return nil
	}
}

// WithHealthInterval sets how often a connected client probes the server; 0
// turns probing off.
func WithHealthInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.healthInterval = d
		return nil
	}
}

// WithHealthChangeCallback is called, on its own goroutine, whenever the
// connection is lost or restored
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithLogger replaces the default slog-backed logger
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger is nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics reports connection state, round trip and breaker state into
// the registry's core metrics. A nil registry is ignored.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}
