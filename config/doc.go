// Package config loads and validates the pipeline configuration.
//
// Configuration is a single JSON document with four sections: pipeline
// identity, NATS connection settings, metrics, and the component instance
// map. Environment variables prefixed with CARTJOIN_ override scalar
// fields after file loading (e.g. CARTJOIN_NATS_URL, CARTJOIN_LOG_LEVEL).
//
// Components are only created when their factory is registered and the
// instance appears in the components map with enabled=true.
package config
