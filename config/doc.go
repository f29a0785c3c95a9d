// Package config provides configuration management for the mediaconnector
// daemon.
//
// Configuration is read from JSON or YAML files, layered over built-in
// defaults, then overridden by MEDIACONNECTOR_* environment variables.
//
// # Core Components
//
// Config: the complete configuration. Connector settings, event publishing,
// NATS connection details, the metrics endpoint, logging, and the demo tap
// layout the CLI requests on startup.
//
// SafeConfig: thread-safe wrapper using RWMutex and deep cloning so readers
// never observe a partially applied update.
//
// Loader: applies file layers in order, then the environment.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/local.json") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//	    return err
//	}
//
// # Environment Overrides
//
//	MEDIACONNECTOR_CONNECTOR_NAME     connector.name
//	MEDIACONNECTOR_MATCH_EXISTING     connector.match_existing
//	MEDIACONNECTOR_EVENTS_ENABLED     events.enabled
//	MEDIACONNECTOR_NATS_URLS          nats.urls (comma separated)
//	MEDIACONNECTOR_METRICS_PORT       metrics.port
//	MEDIACONNECTOR_LOG_LEVEL          log.level
//
// Validation errors are classified invalid (see errors.IsInvalid).
package config
