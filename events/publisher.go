package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mediaconnector/errors"
	"github.com/c360/mediaconnector/metric"
	"github.com/c360/mediaconnector/pkg/retry"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
)

// Publisher delivers events to a Sink from a fixed set of workers.
// Publish never blocks: when the queue is full the event is dropped and
// counted. A nil *Publisher accepts and discards everything.
type Publisher struct {
	name      string
	sink      Sink
	logger    *slog.Logger
	workers   int
	queueSize int
	retry     retry.Policy
	queue     chan Event
	wg        sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64

	registry *metric.MetricsRegistry
	metrics  *publisherMetrics
}

type publisherMetrics struct {
	queueDepth prometheus.Gauge
	published  prometheus.Counter
	dropped    prometheus.Counter
	delivery   *prometheus.HistogramVec
}

// Option configures a Publisher
type Option func(*Publisher)

// WithWorkers sets the number of delivery goroutines
func WithWorkers(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity
func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithRetry sets how transient delivery failures are retried. The default is
// retry.Delivery().
func WithRetry(p retry.Policy) Option {
	return func(pub *Publisher) {
		pub.retry = p
	}
}

// WithLogger sets the logger used for delivery failures
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetricsRegistry registers publisher metrics labelled with the publisher name
func WithMetricsRegistry(r *metric.MetricsRegistry) Option {
	return func(p *Publisher) {
		p.registry = r
	}
}

// NewPublisher creates a stopped publisher delivering to sink
func NewPublisher(name string, sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		name:      name,
		sink:      sink,
		logger:    slog.Default(),
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		retry:     retry.Delivery(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan Event, p.queueSize)

	if p.registry != nil {
		p.initializeMetrics()
	}
	return p
}

func (p *Publisher) initializeMetrics() {
	labels := prometheus.Labels{"publisher": p.name}
	m := &publisherMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "events",
			Name:        "queue_depth",
			Help:        "Events waiting for delivery",
			ConstLabels: labels,
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "events",
			Name:        "published_total",
			Help:        "Events accepted for delivery",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "events",
			Name:        "dropped_total",
			Help:        "Events dropped because the queue was full",
			ConstLabels: labels,
		}),
		delivery: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "events",
			Name:        "delivery_duration_seconds",
			Help:        "Time spent delivering one event",
			Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			ConstLabels: labels,
		}, []string{"status"}),
	}

	service := "events." + p.name
	for _, err := range []error{
		p.registry.RegisterGauge(service, "queue_depth", m.queueDepth),
		p.registry.RegisterCounter(service, "published_total", m.published),
		p.registry.RegisterCounter(service, "dropped_total", m.dropped),
		p.registry.RegisterHistogramVec(service, "delivery_duration_seconds", m.delivery),
	} {
		if err != nil {
			p.logger.Warn("Event metrics not registered", "publisher", p.name, "error", err)
			return
		}
	}
	p.metrics = m
}

// Publish queues e for delivery
func (p *Publisher) Publish(e Event) error {
	if p == nil {
		return nil
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return errors.ErrNotStarted
	}
	if p.stopped {
		return errors.ErrClosed
	}

	select {
	case p.queue <- e:
		p.published.Add(1)
		if p.metrics != nil {
			p.metrics.published.Inc()
			p.metrics.queueDepth.Set(float64(len(p.queue)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return errors.WrapTransient(errors.ErrQueueFull, "Publisher", "Publish", "enqueue event")
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop drains the queue.
func (p *Publisher) Start(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return errors.ErrAlreadyStarted
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for queued events to be delivered
func (p *Publisher) Stop(timeout time.Duration) error {
	if p == nil {
		return nil
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	close(p.queue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(errors.ErrStopTimeout, "Publisher", "Stop", "drain queue")
	}
}

// Stats is a point-in-time view of publisher counters
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Published  int64 `json:"published"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
	Retried    int64 `json:"retried"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns current counters
func (p *Publisher) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Published:  p.published.Load(),
		Delivered:  p.delivered.Load(),
		Failed:     p.failed.Load(),
		Retried:    p.retried.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Publisher) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-p.queue:
			if !ok {
				return
			}
			p.deliver(ctx, e)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, e Event) {
	start := time.Now()
	attempts := 0
	err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		attempts++
		return p.sink.Deliver(ctx, e)
	})
	if attempts > 1 {
		p.retried.Add(int64(attempts - 1))
	}

	status := "success"
	if err != nil {
		status = "error"
		p.failed.Add(1)
		p.logger.Debug("Event delivery failed",
			"publisher", p.name, "kind", e.Kind, "tap", e.Tap, "attempts", attempts, "error", err)
	} else {
		p.delivered.Add(1)
	}

	if p.metrics != nil {
		p.metrics.delivery.WithLabelValues(status).Observe(time.Since(start).Seconds())
		p.metrics.queueDepth.Set(float64(len(p.queue)))
	}
}
