// Package natsclient wraps the NATS Go client with circuit breaker
// protection, status tracking and slog-based logging.
//
// The connector publishes tap lifecycle events through this client. It never
// blocks negotiation on NATS: publishing happens on the events worker pool,
// and a broken connection just fails those publishes.
//
// # Circuit breaker
//
// Failed connects and failed server publishes are counted. Every threshold
// failures (default 5) the circuit opens and Connect and Publish fail fast with
// ErrCircuitOpen, a transient error the events publisher retries. Each round
// doubles the backoff up to the configured maximum; once the backoff elapses
// the circuit half-opens. Stats reports status, failures and backoff.
//
// # Basic usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("mediaconnector"),
//		natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "mediaconnector.events.connector0.src_0", payload)
//
// # Testing
//
// Integration tests (build tag integration) start a real server with
// testcontainers through NewTestClient.
package natsclient
