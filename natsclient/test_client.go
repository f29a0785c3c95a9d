//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultNATSImage = "nats:2.11.7-alpine"

// TestClient is a connected Client backed by a NATS container
type TestClient struct {
	Client *Client
	URL    string
}

type testConfig struct {
	image        string
	timeout      time.Duration
	startTimeout time.Duration
	clientOpts   []ClientOption
}

// TestOption configures NewTestClient
type TestOption func(*testConfig)

// WithNATSImage runs a specific NATS server image
func WithNATSImage(image string) TestOption {
	return func(cfg *testConfig) {
		cfg.image = image
	}
}

// WithStartTimeout bounds how long the server may take to come up
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// WithClientOptions passes extra options to the Client
func WithClientOptions(opts ...ClientOption) TestOption {
	return func(cfg *testConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewTestClient starts a NATS server and connects a Client to it without
// reconnects or health probing. The container and the client are closed when
// t finishes.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := &testConfig{
		image:        defaultNATSImage,
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	ctr, err := testcontainers.Run(ctx, cfg.image,
		testcontainers.WithExposedPorts("4222/tcp", "8222/tcp"),
		testcontainers.WithCmd("--port", "4222", "--http_port", "8222"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/healthz").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}

	url, err := ctr.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		t.Fatalf("NATS endpoint: %v", err)
	}

	clientOpts := append([]ClientOption{
		WithTimeout(cfg.timeout),
		WithMaxReconnects(0),
		WithHealthInterval(0),
	}, cfg.clientOpts...)
	client, err := NewClient(url, clientOpts...)
	if err != nil {
		t.Fatalf("NATS client: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		t.Fatalf("connect to NATS: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close(context.Background())
	})

	return &TestClient{Client: client, URL: url}
}
