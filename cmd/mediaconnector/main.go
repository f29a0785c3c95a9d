// Package main runs a connector on an in-memory pipeline, requests the taps
// described in the configuration and serves metrics and health while tap
// events are published to NATS.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/mediaconnector/component"
	"github.com/c360/mediaconnector/config"
	"github.com/c360/mediaconnector/connector"
	"github.com/c360/mediaconnector/events"
	"github.com/c360/mediaconnector/health"
	"github.com/c360/mediaconnector/metric"
	"github.com/c360/mediaconnector/natsclient"
	"github.com/c360/mediaconnector/pipeline"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "mediaconnector"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stdout)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	logger.Info("Starting mediaconnector",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"connector", cfg.Connector.Name)

	ctx := context.Background()
	app, err := setupApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.shutdown(cliCfg.ShutdownTimeout)

	if err := runDemo(app.conn, cfg.Demo, logger); err != nil {
		return fmt.Errorf("run demo: %w", err)
	}
	if err := printSnapshot(stdout, app.conn); err != nil {
		return err
	}

	if cliCfg.Once {
		return nil
	}
	return waitForSignal(ctx, logger)
}

// initializeConfiguration loads the config file, if any, over the defaults
// and applies CLI overrides
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.MetricsPort != 0 {
		cfg.Metrics.Port = cliCfg.MetricsPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// application holds what run has to tear down
type application struct {
	logger  *slog.Logger
	conn    *connector.Connector
	nats    *natsclient.Client
	events  *events.Publisher
	metrics *metric.Server
}

// setupApplication wires the optional NATS client and metrics server around
// a connector hosted on a playing in-memory pipeline
func setupApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{logger: logger}
	deps := component.Dependencies{Logger: logger}
	monitor := health.NewMonitor()

	if cfg.Metrics.Enabled {
		deps.MetricsRegistry = metric.NewMetricsRegistry()
	}

	if cfg.Events.Enabled {
		client, err := connectToNATS(ctx, cfg, logger, deps.MetricsRegistry, monitor)
		if err != nil {
			return nil, err
		}
		app.nats = client
		deps.NATSClient = client

		deps.Events = events.NewPublisher(cfg.Connector.Name,
			events.NewNATSSink(client, cfg.Events.SubjectPrefix),
			events.WithWorkers(cfg.Events.Workers),
			events.WithQueueSize(cfg.Events.QueueSize),
			events.WithLogger(logger),
			events.WithMetricsRegistry(deps.MetricsRegistry))
		if err := deps.Events.Start(ctx); err != nil {
			app.shutdown(time.Second)
			return nil, fmt.Errorf("start event publisher: %w", err)
		}
		app.events = deps.Events
	}

	host := pipeline.NewBin("pipeline0")
	host.SetState(pipeline.StatePlaying, pipeline.StateNull, pipeline.StatePlaying)

	conn, err := connector.New(host, deps, connector.WithConfig(cfg.Connector))
	if err != nil {
		app.shutdown(time.Second)
		return nil, fmt.Errorf("create connector: %w", err)
	}
	app.conn = conn

	if err := conn.Start(ctx); err != nil {
		app.shutdown(time.Second)
		return nil, fmt.Errorf("start connector: %w", err)
	}

	if deps.MetricsRegistry != nil {
		monitor.SetMetrics(deps.MetricsRegistry.CoreMetrics())
		monitor.Register(conn)

		app.metrics = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, deps.MetricsRegistry)
		app.metrics.SetHealthHandler(monitor.Handler(appName))
		app.metrics.Handle("/taps", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := printSnapshot(w, conn); err != nil {
				logger.Warn("Tap snapshot failed", "error", err)
			}
		}))
		go func() {
			if err := app.metrics.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		logger.Info("Metrics server started", "address", app.metrics.Address())
	}

	return app, nil
}

// connectToNATS establishes the NATS connection and waits for it to be ready
func connectToNATS(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName + "-" + cfg.Connector.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
		natsclient.WithTimeout(cfg.NATS.Timeout.Std()),
		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				monitor.UpdateHealthy("nats", "connected")
			} else {
				monitor.UpdateUnhealthy("nats", "connection lost, reconnecting")
			}
		}),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if registry != nil {
		opts = append(opts, natsclient.WithMetrics(registry))
	}

	client, err := natsclient.NewClient(cfg.NATS.URLs[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "url", cfg.NATS.URLs[0])
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	monitor.UpdateHealthy("nats", "connected")
	return client, nil
}

// printSnapshot writes the current taps as indented JSON
func printSnapshot(w io.Writer, conn *connector.Connector) error {
	type snapshot struct {
		Connector string              `json:"connector"`
		Subgraphs int                 `json:"subgraphs"`
		Taps      []connector.TapInfo `json:"taps"`
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot{
		Connector: conn.Name(),
		Subgraphs: conn.Subgraphs(),
		Taps:      conn.Snapshot(),
	}); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// waitForSignal blocks until SIGINT or SIGTERM
func waitForSignal(ctx context.Context, logger *slog.Logger) error {
	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("mediaconnector running, waiting for shutdown signal")
	<-signalCtx.Done()
	logger.Info("Received shutdown signal")
	return nil
}

// shutdown closes the connector, then drains the event publisher and stops
// the metrics server and NATS
func (a *application) shutdown(timeout time.Duration) {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("Connector close failed", "error", err)
		}
	}
	if a.events != nil {
		if err := a.events.Stop(timeout); err != nil {
			a.logger.Error("Event publisher stop failed", "error", err)
		}
		st := a.events.Stats()
		a.logger.Info("Event publisher stats", "published", st.Published, "dropped", st.Dropped)
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := a.metrics.Stop(ctx)
		cancel()
		if err != nil {
			a.logger.Error("Metrics server stop failed", "error", err)
		}
	}
	if a.nats != nil {
		st := a.nats.Stats()
		a.logger.Info("Event transport stats",
			"status", st.Status.String(),
			"failures", st.Failures,
			"rtt", st.RTT)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Error("NATS close failed", "error", err)
		}
	}
	a.logger.Info("mediaconnector shutdown complete")
}
